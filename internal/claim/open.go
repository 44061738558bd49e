package claim

import (
	"fmt"
	"path/filepath"

	"github.com/iskng/metagent/internal/logging"
	"github.com/iskng/metagent/internal/state"
)

// Open returns the leaser for backend rooted at agentRoot. The agent name
// recorded in file claims is the agent root's directory name.
func Open(backend, agentRoot string, logger *logging.Logger) (Leaser, error) {
	dir := filepath.Join(agentRoot, state.ClaimsDir)
	switch backend {
	case "", BackendFile:
		return NewFileLeaser(dir, filepath.Base(agentRoot), logger), nil
	case BackendSQLite:
		return NewSQLiteLeaser(filepath.Join(dir, LeaseDBFile), logger)
	default:
		return nil, fmt.Errorf("unknown claims backend %q", backend)
	}
}
