package command

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/nevi/revolt-chess-bot/internal/revoltfast"
)

//go:embed helpdocs/*.md
var helpDocs embed.FS

func runHelp(ctx context.Context, env *Env, msg *revoltfast.Message, args []string) error {
	commands := Registry()

	if len(args) == 0 {
		intro := helpDoc("intro")
		names := make([]string, 0, len(commands))
		for _, c := range commands {
			names = append(names, "`"+c.Name+"`")
		}
		text := intro + "\n\nCommands:\n" + strings.Join(names, ", ")
		_ = env.Client.SendReply(ctx, msg.Channel, text, msg.ID, true)
		return nil
	}

	name := args[0]
	for _, c := range commands {
		if c.Name != name && !containsAlias(c.Aliases, name) {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "**%s%s %s**\n\n", env.Prefix, c.Name, c.Usage)
		b.WriteString(helpDoc(c.Name))
		if len(c.Aliases) > 0 {
			fmt.Fprintf(&b, "\n\nAliases: %s", strings.Join(c.Aliases, ", "))
		}
		_ = env.Client.SendReply(ctx, msg.Channel, b.String(), msg.ID, true)
		return nil
	}

	text := env.Cat.MustRender("command.unknown", map[string]any{"Name": name, "Prefix": env.Prefix},
		fmt.Sprintf("Command %q does not exist.", name))
	_ = env.Client.SendReply(ctx, msg.Channel, text, msg.ID, true)
	return nil
}

func helpDoc(name string) string {
	raw, err := helpDocs.ReadFile("helpdocs/" + name + ".md")
	if err != nil {
		return "No description available."
	}
	return strings.TrimSpace(string(raw))
}

func containsAlias(aliases []string, name string) bool {
	for _, a := range aliases {
		if a == name {
			return true
		}
	}
	return false
}
