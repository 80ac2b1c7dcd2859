package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/btp-research/internal/prefs"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read and change stored preferences",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the theme and language",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, done, err := loadPreferences(cmd)
		if err != nil {
			return err
		}
		defer done()

		s := p.Snapshot()
		fmt.Fprintf(cmd.OutOrStdout(), "theme=%s\nlanguage=%s\n", s.Theme, s.Language)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:       "set <theme|language> <value>",
	Short:     "Change a preference",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"theme", "language"},
	RunE: func(cmd *cobra.Command, args []string) error {
		p, done, err := loadPreferences(cmd)
		if err != nil {
			return err
		}
		defer done()

		switch args[0] {
		case "theme":
			err = p.SetTheme(cmd.Context(), args[1])
		case "language":
			err = p.SetLanguage(cmd.Context(), args[1])
		default:
			return eris.Errorf("prefs: unknown preference %q (want theme or language)", args[0])
		}
		if err != nil {
			return err
		}
		s := p.Snapshot()
		fmt.Fprintf(cmd.OutOrStdout(), "theme=%s\nlanguage=%s\n", s.Theme, s.Language)
		return nil
	},
}

func loadPreferences(cmd *cobra.Command) (*prefs.Preferences, func(), error) {
	env, err := initEnv(cmd.Context(), "prefs", envNeeds{state: true})
	if err != nil {
		return nil, nil, err
	}
	p := prefs.New(env.State)
	if err := p.Load(cmd.Context()); err != nil {
		env.Close()
		return nil, nil, err
	}
	return p, env.Close, nil
}

func init() {
	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd)
	rootCmd.AddCommand(prefsCmd)
}
