package dispatch

import "strings"

// CommandType identifies what an input line asks for.
type CommandType int

const (
	CommandTypeNone CommandType = iota
	CommandTypeHelp
	CommandTypeClear
	CommandTypeAbout
	CommandTypeSkills
	CommandTypeExperience
	CommandTypeProjects
	CommandTypeQuestion
)

// Command is a parsed input line.
type Command struct {
	Type CommandType
	// Raw is the line exactly as typed.
	Raw string
}

var builtins = map[string]CommandType{
	"help":       CommandTypeHelp,
	"clear":      CommandTypeClear,
	"about":      CommandTypeAbout,
	"skills":     CommandTypeSkills,
	"experience": CommandTypeExperience,
	"projects":   CommandTypeProjects,
}

// ParseCommand classifies line. Built-in names match case-insensitively
// after trimming; anything else that is not blank is a question.
func ParseCommand(line string) Command {
	name := strings.ToLower(strings.TrimSpace(line))
	if name == "" {
		return Command{Type: CommandTypeNone, Raw: line}
	}
	if t, ok := builtins[name]; ok {
		return Command{Type: t, Raw: line}
	}
	return Command{Type: CommandTypeQuestion, Raw: line}
}

// IsBuiltin reports whether the command is handled locally.
func (c Command) IsBuiltin() bool {
	return c.Type >= CommandTypeHelp && c.Type <= CommandTypeProjects
}

func (t CommandType) String() string {
	switch t {
	case CommandTypeNone:
		return "NONE"
	case CommandTypeHelp:
		return "HELP"
	case CommandTypeClear:
		return "CLEAR"
	case CommandTypeAbout:
		return "ABOUT"
	case CommandTypeSkills:
		return "SKILLS"
	case CommandTypeExperience:
		return "EXPERIENCE"
	case CommandTypeProjects:
		return "PROJECTS"
	case CommandTypeQuestion:
		return "QUESTION"
	default:
		return "UNKNOWN"
	}
}
