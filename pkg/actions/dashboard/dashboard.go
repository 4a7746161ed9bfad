package dashboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// ActionName is the name the dashboard action registers under.
const ActionName = "regenerate_dashboard"

// ErrUnavailable means the generator is not installed on this host.
var ErrUnavailable = errors.New("dashboard generator not installed")

// RegenerateAction implements the actions.Action interface. It rebuilds the
// HTML dashboard by running an external generator command.
type RegenerateAction struct {
	Command []string
	Timeout time.Duration
}

// Name returns the unique name of the action.
func (ra *RegenerateAction) Name() string {
	return ActionName
}

// Execute runs the generator. Absolute paths in the command must exist;
// otherwise ErrUnavailable is returned without running anything.
func (ra *RegenerateAction) Execute(ctx context.Context, data map[string]interface{}) error {
	if len(ra.Command) == 0 {
		return fmt.Errorf("%w: empty command", ErrUnavailable)
	}
	for _, arg := range ra.Command {
		if !filepath.IsAbs(arg) {
			continue
		}
		if _, err := os.Stat(arg); err != nil {
			return fmt.Errorf("%w: %s", ErrUnavailable, arg)
		}
	}

	timeout := ra.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().Strs("command", ra.Command).Interface("alerts", data["alerts"]).Msg("Regenerating dashboard...")

	cmd := exec.CommandContext(ctx, ra.Command[0], ra.Command[1:]...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("dashboard generator timed out after %s", timeout)
	}
	if err != nil {
		return fmt.Errorf("dashboard generator failed: %w\nOutput: %s", err, string(out))
	}
	return nil
}
