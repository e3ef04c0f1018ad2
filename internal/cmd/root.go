package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	dev        bool
)

var rootCmd = &cobra.Command{
	Use:   "noirtty",
	Short: "🖥️  noirtty - Remote terminals with local echo",
	Long: `# 🖥️  noirtty

**Shell sessions that live on a server and are drawn by any number of viewers.**

## ✨ Features

- 🔁 **Full-grid frames**: every viewer draws the same screen, in order
- ⚡ **Local echo**: typed characters appear before the server answers
- 🌐 **WebSocket, TCP and QUIC** transports
- 🧵 **Shared sessions**: attach from several terminals at once

## 🚀 Getting Started

Run **noirtty serve** on the host, then **noirtty attach ws://host:6369** anywhere.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.noirtty/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&dev, "dev", false, "Human-readable colored logs, debug by default")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderMarkdownHelp(cmd)
	})
}

// renderMarkdownHelp renders command help as markdown through glamour
func renderMarkdownHelp(cmd *cobra.Command) {
	var help strings.Builder

	if cmd.Long != "" {
		help.WriteString(cmd.Long)
		help.WriteString("\n\n")
	} else if cmd.Short != "" {
		help.WriteString("# " + cmd.Short)
		help.WriteString("\n\n")
	}

	help.WriteString("## 📖 Usage\n\n```bash\n")
	help.WriteString(cmd.UseLine())
	help.WriteString("\n```\n\n")

	if cmd.HasAvailableSubCommands() {
		help.WriteString("## 🔧 Available Commands\n\n")
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() {
				fmt.Fprintf(&help, "- **%s** - %s\n", sub.Name(), sub.Short)
			}
		}
		help.WriteString("\n")
	}

	if usages := cmd.LocalFlags().FlagUsages(); usages != "" {
		help.WriteString("## ⚙️  Flags\n\n```\n")
		help.WriteString(usages)
		help.WriteString("```\n\n")
	}
	if cmd.HasParent() && cmd.InheritedFlags().HasFlags() {
		help.WriteString("## 🌐 Global Flags\n\n```\n")
		help.WriteString(cmd.InheritedFlags().FlagUsages())
		help.WriteString("```\n\n")
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		_ = cmd.Usage()
		return
	}
	rendered, err := renderer.Render(help.String())
	if err != nil {
		_ = cmd.Usage()
		return
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
}
