package repomanager

import (
	"context"

	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/vidaccounts/internal/server/repositories/users"
)

// MemoryRepositoryManager holds process-local repositories. Data is lost on
// exit.
type MemoryRepositoryManager struct {
	users *users.MemoryRepository
	subs  *subscriptions.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	u := users.NewMemoryRepository()
	return &MemoryRepositoryManager{
		users: u,
		subs:  subscriptions.NewMemoryRepository(u.Exists),
	}
}

func (m *MemoryRepositoryManager) Users() users.Repository                 { return m.users }
func (m *MemoryRepositoryManager) Subscriptions() subscriptions.Repository { return m.subs }
func (m *MemoryRepositoryManager) RunMigrations(context.Context) error     { return nil }
func (m *MemoryRepositoryManager) Close(context.Context) error             { return nil }
