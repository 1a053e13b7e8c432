package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/catherinevee/policyguard/internal/logger"
)

type policyFile struct {
	Policies []PolicyDefinition `json:"policies"`
}

// Load reads the policy file and returns the validated policy set. Any
// invalid policy rejects the entire load.
func Load(path string) ([]PolicyDefinition, error) {
	log := logger.New("policy_loader")
	start := time.Now()
	log.Info("Loading policies", logger.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var file policyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}

	validate := validator.New()
	seen := make(map[string]struct{}, len(file.Policies))
	for i := range file.Policies {
		p := &file.Policies[i]
		log.Debug("Loading policy",
			logger.Int("index", i+1),
			logger.String("policy_id", p.ID))

		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("policy %d (%s): %w", i+1, p.ID, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %d: %w", i+1, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("policy %d: duplicate policy id %q", i+1, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	log.Info("Loaded policies",
		logger.Int("count", len(file.Policies)),
		logger.Duration("duration", time.Since(start)))
	return file.Policies, nil
}
