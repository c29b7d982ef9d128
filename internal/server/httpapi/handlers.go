package httpapi

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carecircle/carecircle/internal/server/models"
	"github.com/carecircle/carecircle/internal/server/services"
)

const minPasswordLength = 8

// --- DTOs ---

type caregiverDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type tokenPairDTO struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type invitationDTO struct {
	ID           string     `json:"id"`
	BabyID       string     `json:"baby_id"`
	InviteeEmail string     `json:"invitee_email"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
}

func toCaregiverDTO(c *models.Caregiver) caregiverDTO {
	return caregiverDTO{ID: c.ID, Email: c.Email, Name: c.Name}
}

func toTokenPairDTO(p *services.TokenPair) tokenPairDTO {
	return tokenPairDTO{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, ExpiresIn: p.ExpiresIn}
}

func toInvitationDTO(inv *models.Invitation) invitationDTO {
	return invitationDTO{
		ID:           inv.ID,
		BabyID:       inv.BabyID,
		InviteeEmail: inv.InviteeEmail,
		Status:       string(inv.Status),
		CreatedAt:    inv.CreatedAt,
		ExpiresAt:    inv.ExpiresAt,
		AcceptedAt:   inv.AcceptedAt,
	}
}

func toInvitationDTOs(invs []*models.Invitation) []invitationDTO {
	out := make([]invitationDTO, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvitationDTO(inv))
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// --- credentials ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeErrorMessage(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	caregiver, pair, err := s.credentials.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Caregiver caregiverDTO `json:"caregiver"`
		Tokens    tokenPairDTO `json:"tokens"`
	}{toCaregiverDTO(caregiver), toTokenPairDTO(pair)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := s.credentials.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenPairDTO(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := s.credentials.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenPairDTO(pair))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "name is required")
		return
	}

	p := PrincipalFromContext(r.Context())
	caregiver, err := s.credentials.UpdateProfile(r.Context(), p.CaregiverID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaregiverDTO(caregiver))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeErrorMessage(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	p := PrincipalFromContext(r.Context())
	if err := s.credentials.ChangePassword(r.Context(), p.CaregiverID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- API keys ---

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string     `json:"name"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "name is required")
		return
	}

	p := PrincipalFromContext(r.Context())
	key, err := s.apiKeys.Create(r.Context(), p.CaregiverID, req.Name, req.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}

	// The full secret appears in this response and never again.
	writeJSON(w, http.StatusCreated, struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		Secret    string     `json:"secret"`
		CreatedAt time.Time  `json:"created_at"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}{key.ID, key.Name, key.Secret, key.CreatedAt, key.ExpiresAt})
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	keys, err := s.apiKeys.List(r.Context(), p.CaregiverID)
	if err != nil {
		writeError(w, err)
		return
	}

	type keyDTO struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		Hint       string     `json:"hint"`
		CreatedAt  time.Time  `json:"created_at"`
		ExpiresAt  *time.Time `json:"expires_at,omitempty"`
		LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	}
	out := make([]keyDTO, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyDTO{k.ID, k.Name, k.Hint, k.CreatedAt, k.ExpiresAt, k.LastUsedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if err := s.apiKeys.Revoke(r.Context(), p.CaregiverID, chi.URLParam(r, "keyID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- invitations ---

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid email address")
		return
	}

	p := PrincipalFromContext(r.Context())
	inv, err := s.invitations.Create(r.Context(), p.CaregiverID, chi.URLParam(r, "babyID"), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	// The token rides along so the caller can build the invite link.
	writeJSON(w, http.StatusCreated, struct {
		invitationDTO
		Token string `json:"token"`
	}{toInvitationDTO(inv), inv.Token})
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	invs, err := s.invitations.ListForBaby(r.Context(), p.CaregiverID, chi.URLParam(r, "babyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvitationDTOs(invs))
}

func (s *Server) handleValidateInvitation(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeErrorMessage(w, http.StatusBadRequest, "token is required")
		return
	}

	res, err := s.invitations.Validate(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason,omitempty"`
		BabyID string `json:"baby_id,omitempty"`
	}{Valid: res.Valid, Reason: res.Reason}
	if res.Valid {
		resp.BabyID = res.Invitation.BabyID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeErrorMessage(w, http.StatusBadRequest, "token is required")
		return
	}

	p := PrincipalFromContext(r.Context())
	inv, err := s.invitations.Accept(r.Context(), p.CaregiverID, req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvitationDTO(inv))
}

func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if err := s.invitations.Revoke(r.Context(), p.CaregiverID, chi.URLParam(r, "invitationID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPendingInvitations(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	invs, err := s.invitations.ListPendingForEmail(r.Context(), p.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvitationDTOs(invs))
}
