package execution

import (
	"errors"
	"fmt"

	"github.com/lambda-feedback/procpipe/internal/execution/definition"
	"github.com/lambda-feedback/procpipe/internal/execution/proc"
	"go.uber.org/zap"
)

// DefaultPipeline is the name under which Config.Command is registered.
const DefaultPipeline = "default"

var ErrNoPipelines = errors.New("no pipelines configured, set a command or a definitions file")

// LoadCatalog builds the pipeline catalog from the definitions file and
// the default command of the config.
func LoadCatalog(config Config, log *zap.Logger) (*definition.Catalog, error) {
	catalog := definition.NewCatalog()

	if config.Definitions != "" {
		loaded, err := definition.Load(config.Definitions)
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}

	if config.Command != "" {
		cmd, err := proc.New([]string{config.Command}, proc.WithShell(true))
		if err != nil {
			return nil, err
		}

		p, err := proc.NewPipeline(cmd)
		if err != nil {
			return nil, err
		}

		if err := catalog.Add(DefaultPipeline, p, "configured command"); err != nil {
			return nil, fmt.Errorf("failed to register command: %w", err)
		}
	}

	if catalog.Len() == 0 {
		return nil, ErrNoPipelines
	}

	for _, e := range catalog.Entries() {
		log.Debug("registered pipeline", zap.String("name", e.Name), zap.String("command", e.Command))
	}

	return catalog, nil
}
