package agent

import (
	"fmt"
	"strings"
)

// Role identifies one of the agent personas.
type Role string

// Known roles.
const (
	RoleCEO       Role = "ceo"
	RoleCTO       Role = "cto"
	RolePM        Role = "pm"
	RoleDesigner  Role = "designer"
	RoleMarketing Role = "marketing"
)

// Roles lists every persona in document order.
var Roles = []Role{RoleCEO, RoleCTO, RolePM, RoleDesigner, RoleMarketing}

// Profile is the static description of a role used in prompts and headings.
type Profile struct {
	Title       string
	Description string
	Expertise   string
	Focus       string
}

var profiles = map[Role]Profile{
	RoleCEO: {
		Title:       "CEO",
		Description: "As CEO, you provide strategic vision, business model insights, and high-level direction for the startup.",
		Expertise:   "business strategy, leadership, market positioning, fundraising, and overall company vision",
		Focus:       "Strategic Direction",
	},
	RoleCTO: {
		Title:       "CTO",
		Description: "As CTO, you handle technical architecture, development strategy, and technology decisions.",
		Expertise:   "technical architecture, development processes, technology stack selection, and engineering team management",
		Focus:       "Technical Implementation",
	},
	RolePM: {
		Title:       "Product Manager",
		Description: "As Product Manager, you focus on product strategy, user needs, and feature prioritization.",
		Expertise:   "product roadmap, user experience, feature prioritization, and market requirements",
		Focus:       "Product Development",
	},
	RoleDesigner: {
		Title:       "Designer",
		Description: "As Designer, you handle user interface, user experience, and overall design strategy.",
		Expertise:   "UI/UX design, brand identity, user research, and design systems",
		Focus:       "User Interface",
	},
	RoleMarketing: {
		Title:       "Marketing Lead",
		Description: "As Marketing Lead, you develop marketing strategy, growth plans, and brand positioning.",
		Expertise:   "marketing strategy, brand development, customer acquisition, and growth tactics",
		Focus:       "Market Strategy",
	},
}

// ParseRole validates an externally supplied role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown agent %q", s)
	}
	return r, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := profiles[r]
	return ok
}

// Profile returns the role's profile. Unknown roles get the CEO profile.
func (r Role) Profile() Profile {
	if p, ok := profiles[r]; ok {
		return p
	}
	return profiles[RoleCEO]
}

// Token is the upper-cased role name used in prompts and fallback text.
func (r Role) Token() string {
	return strings.ToUpper(string(r))
}

func (r Role) String() string { return string(r) }
