package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KeLes-Coding/novel-agent/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "novel",
	Short: "Staged, resumable long-form fiction generator",
	Long: `Novel drives a language model through ideation, outline, story bible,
scene plan and scene-by-scene drafting. Every step is persisted, so a run can
be stopped, inspected, rolled back and resumed at any time.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default .novel.yaml)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.String("runs-dir", "", "directory holding run state")
	pf.String("store", "", "storage backend: file or sqlite")
	pf.String("generator", "", "generator backend: cli or mock")
	pf.String("model", "", "model passed to the generator")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("runs_dir", pf.Lookup("runs-dir"))
	_ = viper.BindPFlag("store", pf.Lookup("store"))
	_ = viper.BindPFlag("generator", pf.Lookup("generator"))
	_ = viper.BindPFlag("model", pf.Lookup("model"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".novel")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	config.BindEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}
