package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage dupesweep configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/dupesweep/config.yaml (if set)
  2. ~/.config/dupesweep/config.yaml

Environment variables override config file settings using the DUPESWEEP_ prefix:
  DUPESWEEP_HASH_THRESHOLD=4
  DUPESWEEP_HASH_ALGORITHM=dhash
  DUPESWEEP_WORKERS_CEILING=4`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the configuration file",
	Long: `Open the configuration file in $VISUAL, $EDITOR or vi, creating a
default one first if needed.`,
	RunE: runConfigEdit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// cliOnlyKeys are bound flags that are not part of the config file.
var cliOnlyKeys = []string{
	"output", "no_interactive", "no_cache", "trash", "yes", "skip",
	"export_db", "quiet", "verbose",
}

// effectiveSettings returns the merged settings without CLI-only keys.
func effectiveSettings(v *viper.Viper) map[string]any {
	settings := v.AllSettings()
	for _, k := range cliOnlyKeys {
		delete(settings, k)
	}
	return settings
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if _, err := loadConfig(); err != nil {
		printError("configuration is invalid: %v", err)
	}

	if f := viper.ConfigFileUsed(); f != "" {
		fmt.Printf("# Config file: %s\n", f)
	} else {
		fmt.Println("# Config file: (using defaults, no file found)")
	}

	var overrides []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "DUPESWEEP_") {
			overrides = append(overrides, kv)
		}
	}
	if len(overrides) > 0 {
		fmt.Println("# Environment overrides:")
		for _, kv := range overrides {
			fmt.Printf("#   %s\n", kv)
		}
	}

	out, err := yaml.Marshal(effectiveSettings(viper.GetViper()))
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		printInfo("Use 'dupesweep config edit' to modify it.")
		return nil
	}

	written, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", written)
	return nil
}

func runConfigPath(_ *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Println(path)

	if _, err := os.Stat(path); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}

func runConfigEdit(_ *cobra.Command, _ []string) error {
	path, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	printVerbose("Opening %s with %s", path, editor)

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	if _, err := config.Load(path); err != nil {
		printError("the edited configuration is invalid: %v", err)
	}
	return nil
}
