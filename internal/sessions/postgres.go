package sessions

import (
	"errors"

	"github.com/sports-federation/federation-portal/internal/db/repositories"
)

func init() {
	Register("postgres", func(deps Deps) (Store, error) {
		if deps.DB == nil {
			return nil, errors.New("postgres session backend requires a database connection")
		}
		return repositories.NewSessionRepository(deps.DB), nil
	})
}

var _ Store = (*repositories.SessionRepository)(nil)
