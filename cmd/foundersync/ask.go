package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/foundersync/internal/agent"
	"github.com/ashureev/foundersync/internal/domain"
	"github.com/ashureev/foundersync/internal/store"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Get one reply from an agent",
	Long: `Send one message to an agent and print the reply.

The startup context comes from flags, or from a stored simulation when
--simulation is set. With --simulation the exchange is saved like a chat
message from the web app.

Examples:
  foundersync ask --agent cto --startup Acme --industry SaaS "What stack should we use?"
  foundersync ask --agent marketing --stream --startup Acme "How do we launch?"
  foundersync ask --simulation 7f0c... --agent pm "What ships first?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringP("agent", "a", string(agent.RoleCEO), "agent to ask (ceo, cto, pm, designer, marketing)")
	askCmd.Flags().String("startup", "", "startup name")
	askCmd.Flags().String("industry", "", "startup industry")
	askCmd.Flags().String("description", "", "startup description")
	askCmd.Flags().String("simulation", "", "load context from, and save to, a stored simulation")
	askCmd.Flags().Bool("stream", false, "print the reply word by word")
	askCmd.Flags().Bool("json", false, "print the full reply record as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(args[0])
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}

	agentName, _ := cmd.Flags().GetString("agent")
	role, err := agent.ParseRole(agentName)
	if err != nil {
		return err
	}

	cfg, svc, err := newService(cmd)
	if err != nil {
		return err
	}

	cc := agent.ConversationContext{}
	cc.StartupName, _ = cmd.Flags().GetString("startup")
	cc.Industry, _ = cmd.Flags().GetString("industry")
	cc.Description, _ = cmd.Flags().GetString("description")

	simulationID, _ := cmd.Flags().GetString("simulation")
	var repo *store.SQLiteStore
	if simulationID != "" {
		repo, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()

		sim, err := repo.GetSimulation(cmd.Context(), simulationID)
		if err != nil {
			return fmt.Errorf("load simulation: %w", err)
		}
		convs, err := repo.RecentConversations(cmd.Context(), sim.ID, cfg.Chat.HistoryLimit)
		if err != nil {
			return fmt.Errorf("load conversation history: %w", err)
		}
		cc = agent.BuildContext(sim, convs)
	} else if cc.StartupName == "" {
		return fmt.Errorf("--startup is required without --simulation")
	}

	out := cmd.OutOrStdout()
	stream, _ := cmd.Flags().GetBool("stream")
	asJSON, _ := cmd.Flags().GetBool("json")

	var resp agent.ChatResponse
	if stream && !asJSON {
		resp.Response, err = svc.GenerateAgentResponseStream(cmd.Context(), role, message, cc, func(chunk string) error {
			_, werr := fmt.Fprint(out, chunk)
			return werr
		})
		if err == nil {
			fmt.Fprintln(out)
		}
	} else {
		resp.Response, err = svc.Respond(cmd.Context(), role, message, cc)
	}
	if err != nil {
		return fmt.Errorf("%s could not answer: %w", role.Token(), err)
	}

	if repo != nil {
		err := repo.SaveConversation(cmd.Context(), &domain.Conversation{
			SimulationID:  simulationID,
			AgentName:     string(role),
			UserMessage:   message,
			AgentResponse: resp.Response,
		})
		if err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}
	}

	switch {
	case asJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case !stream:
		fmt.Fprintln(out, resp.Response.Message)
	}
	return nil
}
