package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"
)

// ValidateDeep performs comprehensive validation of the configuration
// including glob syntax and file accessibility. The configPath argument
// specifies the config file location to validate (empty string skips the
// config file check). Validate runs first for structural checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateWatchGlobs(),
	)
}

// validateFileAccess checks config file, workspace, and git executable.
func (c *Config) validateFileAccess(configPath string) error {
	fields := []error{
		validateConfigFile(configPath),
		criterio.Run("workspace", c.Workspace, isDirectory),
	}
	if c.Review.CaptureGit {
		fields = append(fields, criterio.Run("git_path", c.GitPath, gitExecutableExists))
	}
	return criterio.ValidateStruct(fields...)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

func (c *Config) validateWatchGlobs() error {
	var errs criterio.FieldErrorsBuilder
	for i, pattern := range c.Watch.Include {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("watch.include[%d]", i), fmt.Errorf("invalid glob %q", pattern))
		}
	}
	return errs.ToError()
}

// gitExecutableExists validates that the git path is executable.
func gitExecutableExists(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("executable not found: %s", path)
	}
	return nil
}

func isDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}
