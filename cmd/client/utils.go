package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/partvault/partvault/internal/client/config"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))

	titleStyle = cyan.Bold(true)
)

func printError(err error) {
	fmt.Printf("%s: %s\n", red.Bold(true).Render("ERROR"), err)
}

// readValidConfig loads and validates a config file. With requireAuth it also
// demands a usable refresh token, the bar for "already logged in".
func readValidConfig(path string, requireAuth bool) (*config.Config, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if requireAuth && cfg.RefreshToken == "" {
		return nil, fmt.Errorf("config has no refresh token")
	}
	return cfg, nil
}

func logConfig(cfg *config.Config) {
	fmt.Println(lightGray.Render("PARTVAULT CLIENT CONFIG"))
	fmt.Printf("%s%s\n", gray.Render("Config  "), green.Render(cfg.Path))
	fmt.Printf("%s%s\n", gray.Render("Email   "), cyan.Render(cfg.Email))
	fmt.Printf("%s%s\n", gray.Render("Vault   "), cyan.Render(cfg.VaultDir))
	fmt.Printf("%s%s\n", gray.Render("Server  "), cyan.Render(cfg.ServerURL))
}
