package repomanager

import (
	"context"
	"database/sql"

	"github.com/carecircle/carecircle/internal/dbx"
	"github.com/carecircle/carecircle/internal/server/repositories/apikeys"
	"github.com/carecircle/carecircle/internal/server/repositories/caregivers"
	"github.com/carecircle/carecircle/internal/server/repositories/invitations"
	"github.com/carecircle/carecircle/internal/server/repositories/relations"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Caregivers(db dbx.DBTX) caregivers.Repository
	APIKeys(db dbx.DBTX) apikeys.Repository
	Invitations(db dbx.DBTX) invitations.Repository
	Relations(db dbx.DBTX) relations.Repository
}
