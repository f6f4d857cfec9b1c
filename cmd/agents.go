package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/autoplexhq/leadflow/model"
)

// agentsCommands groups the collaborator agent commands.
func agentsCommands(b *leadflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "inspect collaborator agent health",
	}

	cmd.AddCommand(agentsStatusCommand(b))
	cmd.AddCommand(agentsHeartbeatCommand(b))

	return cmd
}

// agentsStatusCommand prints the derived health of every known agent.
func agentsStatusCommand(b *leadflowInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show agent health derived from heartbeats",
		Run: func(cmd *cobra.Command, args []string) {
			snapshot, err := b.engine.AllAgentHealth(context.Background())
			if err != nil {
				log.Fatalf("Error fetching agent health: %v", err)
			}
			for _, h := range snapshot {
				lastSeen := "never"
				if !h.LastSeen.IsZero() {
					lastSeen = h.LastSeen.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-22s %-10s last seen: %s %s\n", h.AgentID, h.Status, lastSeen, h.Detail)
			}
		},
	}
}

// agentsHeartbeatCommand records a heartbeat for an agent, mainly useful
// when poking at a local setup.
func agentsHeartbeatCommand(b *leadflowInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat [agent-id]",
		Short: "record a heartbeat for an agent",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			agentID := model.AgentID(args[0])
			if err := b.engine.ReportHeartbeat(context.Background(), agentID); err != nil {
				log.Fatalf("Error recording heartbeat: %v", err)
			}
			fmt.Printf("Heartbeat recorded for %s\n", agentID)
		},
	}
}
