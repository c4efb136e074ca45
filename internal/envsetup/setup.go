// envsetup provides a lightweight .env configuration wizard.
// It runs automatically on first bot startup when no .env file exists,
// collecting the Discord token, database location, and operator settings.
package envsetup

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jusunglee/hearth/internal/sanitize"
)

const (
	DefaultPath        = ".env"
	DefaultDatabaseURL = "./hearth.db"
)

type step int

const (
	stepWelcome step = iota
	stepDiscord
	stepDatabase
	stepOwner
	stepWebhook
	stepConfirm
	stepDone
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("208")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

type model struct {
	step         step
	path         string
	textInput    textinput.Model
	discordToken string
	databaseURL  string
	ownerID      string
	webhookURL   string
	err          error
	width        int
	height       int
}

func New(path string) model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 60

	return model{
		step:      stepWelcome,
		path:      path,
		textInput: ti,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleEnter()
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m model) handleEnter() (tea.Model, tea.Cmd) {
	m.err = nil
	value := strings.TrimSpace(m.textInput.Value())

	switch m.step {
	case stepWelcome:
		m.next(stepDiscord)

	case stepDiscord:
		if value == "" {
			m.err = fmt.Errorf("Discord token is required")
			return m, nil
		}
		m.discordToken = value
		m.next(stepDatabase)

	case stepDatabase:
		if value == "" {
			value = DefaultDatabaseURL
		}
		m.databaseURL = value
		m.next(stepOwner)

	case stepOwner:
		if strings.Trim(value, "0123456789") != "" {
			m.err = fmt.Errorf("Owner ID should be a numeric Discord user ID")
			return m, nil
		}
		m.ownerID = value
		m.next(stepWebhook)

	case stepWebhook:
		if value != "" && !strings.HasPrefix(value, "https://") {
			m.err = fmt.Errorf("Webhook URL must start with https://")
			return m, nil
		}
		m.webhookURL = value
		m.next(stepConfirm)

	case stepConfirm:
		switch strings.ToLower(value) {
		case "y", "yes", "":
			if err := m.writeEnvFile(); err != nil {
				m.err = err
				return m, nil
			}
			m.step = stepDone
			return m, tea.Quit
		case "n", "no":
			return New(m.path), nil
		}
		m.err = fmt.Errorf("Please answer y or n")
	}

	return m, nil
}

// next clears the input and configures echo for the step's field.
func (m *model) next(s step) {
	m.step = s
	m.textInput.SetValue("")
	m.textInput.EchoMode = textinput.EchoNormal
	m.textInput.Placeholder = ""

	switch s {
	case stepDiscord, stepWebhook:
		m.textInput.EchoMode = textinput.EchoPassword
		m.textInput.EchoCharacter = '•'
	case stepDatabase:
		m.textInput.Placeholder = DefaultDatabaseURL
	}
}

func (m model) envFile() string {
	var s strings.Builder
	s.WriteString("# Generated by hearth setup\n\n")
	fmt.Fprintf(&s, "DATABASE_URL=%s\n", m.databaseURL)
	fmt.Fprintf(&s, "DISCORD_TOKEN=%s\n", m.discordToken)
	if m.ownerID != "" {
		fmt.Fprintf(&s, "OWNER_ID=%s\n", m.ownerID)
	}
	if m.webhookURL != "" {
		fmt.Fprintf(&s, "NOTIFY_WEBHOOK_URL=%s\n", m.webhookURL)
	}
	return s.String()
}

func (m model) writeEnvFile() error {
	return os.WriteFile(m.path, []byte(m.envFile()), 0600)
}

func (m model) View() string {
	var s strings.Builder

	switch m.step {
	case stepWelcome:
		s.WriteString(titleStyle.Render("hearth - Env Setup"))
		s.WriteString("\n\n")
		s.WriteString("This wizard will help you configure the bot.\n")
		s.WriteString("You'll need:\n\n")
		s.WriteString("  - A Discord bot token\n")
		s.WriteString("  - Optionally, your Discord user ID and a webhook for bot events\n")
		s.WriteString("\n")
		s.WriteString(dimStyle.Render("Press Enter to continue, Ctrl+C to exit"))

	case stepDiscord:
		s.WriteString(titleStyle.Render("Step 1: Discord Bot Token"))
		s.WriteString("\n\n")
		s.WriteString("To get your Discord bot token:\n\n")
		s.WriteString("  1. Go to " + linkStyle.Render("https://discord.com/developers/applications") + "\n")
		s.WriteString("  2. Create a new application (or select existing)\n")
		s.WriteString("  3. Go to the Bot section\n")
		s.WriteString("  4. Click 'Reset Token' to get your bot token\n")
		s.WriteString("  5. Enable 'Server Members Intent' so welcome messages work\n")
		m.renderInput(&s, "Paste your Discord token here:")

	case stepDatabase:
		s.WriteString(titleStyle.Render("Step 2: Database"))
		s.WriteString("\n\n")
		s.WriteString("A SQLite file path, or a postgres:// URL.\n")
		m.renderInput(&s, "Press Enter to use "+DefaultDatabaseURL+":")

	case stepOwner:
		s.WriteString(titleStyle.Render("Step 3: Bot Owner (optional)"))
		s.WriteString("\n\n")
		s.WriteString("Your Discord user ID unlocks /premium grant and /cooldown stats.\n")
		s.WriteString("Enable Developer Mode, then right click your name and choose 'Copy User ID'.\n")
		m.renderInput(&s, "Paste your user ID, or press Enter to skip:")

	case stepWebhook:
		s.WriteString(titleStyle.Render("Step 4: Event Webhook (optional)"))
		s.WriteString("\n\n")
		s.WriteString("Joins, leaves, and command failures are posted here.\n")
		m.renderInput(&s, "Paste a webhook URL, or press Enter to skip:")

	case stepConfirm, stepDone:
		s.WriteString(titleStyle.Render("Configuration Complete"))
		s.WriteString("\n\n")
		s.WriteString("Your configuration:\n\n")
		s.WriteString("  Database: " + successStyle.Render(m.databaseURL) + "\n")
		s.WriteString("  Discord:  " + successStyle.Render(sanitize.MaskSecret(m.discordToken)) + "\n")
		s.WriteString("  Owner:    " + successStyle.Render(orNone(m.ownerID)) + "\n")
		s.WriteString("  Webhook:  " + successStyle.Render(orNone(sanitize.MaskSecret(m.webhookURL))) + "\n")
		m.renderInput(&s, "Save this configuration? [Y/n]:")
	}

	s.WriteString("\n")
	return s.String()
}

func (m model) renderInput(s *strings.Builder, label string) {
	s.WriteString("\n")
	s.WriteString(labelStyle.Render(label))
	s.WriteString("\n")
	s.WriteString(m.textInput.View())
	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// Run starts the setup wizard and returns true if setup was completed successfully
func Run(path string) (bool, error) {
	p := tea.NewProgram(New(path))
	finalModel, err := p.Run()
	if err != nil {
		return false, err
	}

	m := finalModel.(model)
	return m.step == stepDone, nil
}

// NeedsSetup checks if the env file exists
func NeedsSetup(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}
