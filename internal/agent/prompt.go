package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/foundersync/internal/domain"
)

// BuildPrompt renders the role-conditioned instruction for one reply.
func BuildPrompt(role Role, message string, cc ConversationContext) string {
	profile := role.Profile()
	token := role.Token()

	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s of %s, a startup in the %s industry.\n\n", token, cc.StartupName, cc.Industry)
	fmt.Fprintf(&b, "The startup's description is: %s\n\n", cc.Description)
	fmt.Fprintf(&b, "Your role and expertise: %s\n\n", profile.Description)
	b.WriteString("Previous conversations in chronological order:\n")
	b.WriteString(renderHistory(cc.History))
	fmt.Fprintf(&b, "\n\nUser's question: %s\n\n", message)

	b.WriteString("IMPORTANT INSTRUCTIONS:\n")
	fmt.Fprintf(&b, "1. Respond as the %s role, maintaining character and expertise\n", role)
	b.WriteString("2. Keep responses concise and focused (5-6 sentences max)\n")
	b.WriteString("3. Be direct and actionable in your advice\n")
	b.WriteString("4. Use natural, conversational language\n")
	fmt.Fprintf(&b, "5. Focus on your specific area of expertise: %s\n", profile.Expertise)
	b.WriteString("6. Consider the context of ALL previous conversations, including those with other agents\n")
	b.WriteString(`7. CRITICAL: Your response MUST be a valid JSON object with the following structure:
{
    "message": "Your concise response here",
    "tone": "confident/thoughtful/analytical/etc",
    "emotion": "neutral/excited/concerned/etc"
}
`)
	b.WriteString("8. Do not include any text before or after the JSON object\n")
	b.WriteString("9. Ensure the response is properly escaped JSON")
	return b.String()
}

func renderHistory(history []HistoryEntry) string {
	lines := make([]string, 0, len(history))
	for _, h := range history {
		agent := strings.ToUpper(h.AgentName)
		lines = append(lines, fmt.Sprintf("%s: User asked: %s\n%s responded: %s", agent, h.UserMessage, agent, h.AgentMessage))
	}
	return strings.Join(lines, "\n\n")
}

// BuildSectionPrompt renders the documentation request for one topic,
// sent as the user message of a regular reply.
func BuildSectionPrompt(role Role, startupName, section string) string {
	return fmt.Sprintf(`
You are the %s of %s. Generate a CONCISE perspective on:

%s

Focus on your role-specific insights:
- CEO: Strategic vision and business impact
- CTO: Technical implementation and architecture
- Product Manager: User experience and feature roadmap
- Designer: UI/UX design approach
- Marketing: Market positioning and promotion

IMPORTANT: Your response must be a valid JSON object with EXACTLY these fields:
{
    "message": "Your role-specific insights here (2-3 focused bullet points)",
    "tone": "professional",
    "emotion": "confident"
}

REQUIREMENTS:
- Keep each bullet point under 100 characters
- Focus on your role's perspective
- Be specific and actionable
- Use clear, professional language
`, role.Token(), startupName, section)
}

// BuildAskPrompt renders a free-form markdown question to one agent, given
// the current outputs of the whole team.
func BuildAskPrompt(role Role, sim *domain.Simulation, question string, outputs []*domain.AgentOutput) string {
	var own string
	others := make(map[string]string)
	for _, o := range outputs {
		if o.AgentName == string(role) {
			own = o.Output
			continue
		}
		others[o.AgentName] = o.Output
	}

	names := make([]string, 0, len(others))
	for name := range others {
		names = append(names, name)
	}
	sort.Strings(names)

	insights := make([]string, 0, len(names))
	for _, name := range names {
		insights = append(insights, fmt.Sprintf("%s: %s", strings.ToUpper(name), others[name]))
	}

	return fmt.Sprintf(`You are the %s of %s, a startup in the %s industry.

Your previous analysis was:
%s

Other team members have provided these insights:
%s

Question from the team: %s

Provide a detailed answer based on your role and expertise, taking into account the previous context and team insights.
Format your response in a clear, structured way using markdown.`,
		role.Token(), sim.StartupName, sim.Industry, own, strings.Join(insights, "\n"), question)
}
