package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"

	"ytexport/internal/config"
	"ytexport/internal/debug"
	apperrors "ytexport/internal/errors"
	"ytexport/internal/youtrack"
)

const bannerMarkdown = "# YouTrack Export"

const tokenHelpMarkdown = `**How you can find your API token in YouTrack:**

- Go to Settings > Personal > Tokens
- Create a new token with appropriate permissions
- Copy the token and paste it below`

// renderMarkdown renders markdown for the terminal, or returns it unchanged
// when colors are off.
func renderMarkdown(content string) string {
	if !colorsEnabled {
		return content
	}
	rendered, err := glamour.RenderWithEnvironmentConfig(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

func printBanner(w io.Writer) {
	_, _ = fmt.Fprintln(w, renderMarkdown(bannerMarkdown))
}

// connect resolves credentials, prompting for missing ones when attached to
// a terminal, and validates them against the current user endpoint.
func (a *app) connect(ctx context.Context) (*youtrack.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	creds := config.Credentials()
	if !creds.Complete() {
		if !a.interactive {
			return nil, apperrors.New(apperrors.CodeAuthentication,
				"YouTrack URL and token are required: set YOUTRACK_URL and YOUTRACK_TOKEN or pass --url and --token", nil)
		}
		prompted, err := a.promptCredentials(creds)
		if err != nil {
			return nil, err
		}
		if err := config.SaveCredentials(prompted); err != nil {
			return nil, apperrors.New(apperrors.CodeConfigurationError, "Failed to save credentials", err)
		}
		_, _ = fmt.Fprintln(a.out, successStyle.Render("Credentials saved to "+config.DefaultCredentialsFile))
		creds = config.Credentials()
	}

	settings := config.ExportSettings()
	client, err := youtrack.NewClient(
		youtrack.ClientConfig{BaseURL: creds.URL, Token: creds.Token},
		youtrack.WithTimeout(settings.HTTPTimeout),
		youtrack.WithUserAgent(youtrack.DefaultUserAgent+"/"+Version),
	)
	if err != nil {
		return nil, err
	}

	_, _ = fmt.Fprintln(a.out, countStyle.Render("Initializing YouTrack client..."))
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	debug.Logf("connected to %s as %s", client.BaseURL(), user.Login)
	_, _ = fmt.Fprintf(a.out, "%s %s\n", titleStyle.Render("Connected as:"), successStyle.Render(user.DisplayName()))

	a.client = client
	a.user = user
	return client, nil
}

// promptCredentials asks only for what is missing.
func (a *app) promptCredentials(current config.Creds) (config.Creds, error) {
	creds := current
	var fields []huh.Field

	if creds.URL == "" {
		fields = append(fields, huh.NewInput().
			Title("Enter your YouTrack URL:").
			Description("e.g. https://youtrack.example.com").
			Value(&creds.URL).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("URL to your YouTrack instance is required")
				}
				return nil
			}))
	}
	if creds.Token == "" {
		fields = append(fields,
			huh.NewNote().
				Title("YouTrack API Token").
				Description(renderMarkdown(tokenHelpMarkdown)),
			huh.NewInput().
				Title("Enter your YouTrack API token:").
				EchoMode(huh.EchoModePassword).
				Value(&creds.Token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("API token is required")
					}
					return nil
				}))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return config.Creds{}, err
	}
	creds.URL = config.NormalizeURL(creds.URL)
	creds.Token = strings.TrimSpace(creds.Token)
	return creds, nil
}
