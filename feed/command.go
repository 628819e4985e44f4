package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/colorfulnotion/feauxviz/engine"
	"github.com/colorfulnotion/feauxviz/snapshot"
)

// Command is a viewer request to change the simulation.
type Command struct {
	Op    string `json:"op"`
	Name  string `json:"name,omitempty"`
	Value int    `json:"value,omitempty"`
}

// Apply runs the command against the engine.
func (cmd Command) Apply(ctx context.Context, c *engine.Client) error {
	switch strings.ToLower(cmd.Op) {
	case "pause":
		return c.Pause(ctx)
	case "unpause", "resume":
		return c.Unpause(ctx)
	case "spawn":
		_, err := c.Spawn(ctx, cmd.Name)
		return err
	case "clock":
		if cmd.Value < 0 {
			return fmt.Errorf("clock delay %d", cmd.Value)
		}
		return c.SetClockDelay(ctx, uint32(cmd.Value))
	case "strategy":
		s, err := snapshot.ParseStrategy(cmd.Name)
		if err != nil {
			return err
		}
		return c.SetSchedulingStrategy(ctx, s)
	case "cores":
		return c.SetCoreCount(ctx, cmd.Value)
	case "io":
		return c.SetIODeviceCount(ctx, cmd.Value)
	}
	return fmt.Errorf("unknown command %q", cmd.Op)
}
