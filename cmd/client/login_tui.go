package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/partvault/partvault/internal/utils"
)

// loginStep is the current screen of the login flow.
type loginStep int

const (
	stepEmail loginStep = iota
	stepOTP
)

const (
	loginHelp   = "Press 'Enter' to submit. 'Esc' to go back/quit. 'Ctrl+C' to quit."
	otpHint     = "Please check your inbox or junk folder."
	otpCharSet  = "one-time codes are 8 characters, letters and digits"
	badEmailMsg = "Invalid email"
	badOTPMsg   = "Invalid OTP"
)

// LoginTUIOpts wires the login flow to the auth endpoints. The handlers run
// off the UI goroutine; their errors come back as screen messages.
type LoginTUIOpts struct {
	Email      string // pre-fills the email field when set
	ServerURL  string
	VaultDir   string
	ConfigPath string

	EmailSubmitHandler func(email string) error
	OTPSubmitHandler   func(email, otp string) error
	EmailValidator     func(email string) bool
	OTPValidator       func(otp string) bool
}

type otpRequestedMsg struct{ err error }
type otpVerifiedMsg struct{ err error }

type loginModel struct {
	opts *LoginTUIOpts

	emailInput textinput.Model
	otpInput   textinput.Model
	spinner    spinner.Model

	step    loginStep
	busy    bool
	busyMsg string
	errText string

	submittedEmail string
}

func newLoginModel(opts *LoginTUIOpts) loginModel {
	email := textinput.New()
	email.Placeholder = "your@email.com"
	email.CharLimit = 64
	email.Width = 64
	email.PromptStyle = green
	email.TextStyle = green
	email.PlaceholderStyle = gray
	email.SetValue(opts.Email)
	email.Focus()

	otp := textinput.New()
	otp.Placeholder = "••••••••"
	otp.CharLimit = 8
	otp.Width = 8
	otp.PromptStyle = green
	otp.TextStyle = green
	otp.PlaceholderStyle = gray

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return loginModel{
		opts:       opts,
		emailInput: email,
		otpInput:   otp,
		spinner:    s,
		step:       stepEmail,
	}
}

func (m loginModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// typing clears a stale error
		if m.emailInput.Focused() {
			m.errText = ""
			var cmd tea.Cmd
			m.emailInput, cmd = m.emailInput.Update(msg)
			cmds = append(cmds, cmd)
		} else if m.otpInput.Focused() {
			m.errText = ""
			var cmd tea.Cmd
			m.otpInput, cmd = m.otpInput.Update(msg)
			cmds = append(cmds, cmd)
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc:
			if m.step == stepOTP {
				// back to the email screen, not out of the program
				m.step = stepEmail
				m.otpInput.Blur()
				m.emailInput.Focus()
				m.errText = ""
				return m, textinput.Blink
			}
			return m, tea.Quit

		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			if m.step == stepEmail {
				return m.submitEmail()
			}
			return m.submitOTP()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case otpRequestedMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = fmt.Sprintf("%s %s", red.Bold(true).Render("ERROR:"), msg.err.Error())
			m.emailInput.Focus()
			return m, textinput.Blink
		}
		m.step = stepOTP
		m.otpInput.Focus()
		return m, textinput.Blink

	case otpVerifiedMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = fmt.Sprintf("%s %s", red.Bold(true).Render("ERROR:"), msg.err.Error())
			m.otpInput.Focus()
			return m, textinput.Blink
		}
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

func (m loginModel) submitEmail() (tea.Model, tea.Cmd) {
	email := strings.TrimSpace(m.emailInput.Value())
	if !m.opts.EmailValidator(email) {
		m.errText = badEmailMsg
		return m, nil
	}

	m.errText = ""
	m.busy = true
	m.busyMsg = "Requesting OTP..."
	m.submittedEmail = email
	m.emailInput.Blur()

	return m, func() tea.Msg {
		return otpRequestedMsg{err: m.opts.EmailSubmitHandler(email)}
	}
}

func (m loginModel) submitOTP() (tea.Model, tea.Cmd) {
	// Codes are upper-case letters and digits; typed case is irrelevant.
	otp := strings.ToUpper(strings.TrimSpace(m.otpInput.Value()))
	if !m.opts.OTPValidator(otp) {
		m.errText = badOTPMsg
		return m, nil
	}

	m.errText = ""
	m.busy = true
	m.busyMsg = "Verifying OTP..."
	m.otpInput.Blur()

	return m, func() tea.Msg {
		return otpVerifiedMsg{err: m.opts.OTPSubmitHandler(m.submittedEmail, otp)}
	}
}

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(utils.PartVaultArt))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s%s\n", gray.Render("Server  "), green.Render(m.opts.ServerURL))
	fmt.Fprintf(&b, "%s%s\n", gray.Render("Vault   "), green.Render(m.opts.VaultDir))
	fmt.Fprintf(&b, "%s%s\n", gray.Render("Config  "), green.Render(m.opts.ConfigPath))
	b.WriteString("\n")

	switch m.step {
	case stepEmail:
		b.WriteString("Enter your email address\n\n")
		b.WriteString(m.emailInput.View())
	case stepOTP:
		fmt.Fprintf(&b, "Enter the OTP sent to %s\n", green.Render(m.submittedEmail))
		b.WriteString(gray.Render(otpHint))
		b.WriteString("\n")
		b.WriteString(gray.Render(otpCharSet))
		b.WriteString("\n\n")
		b.WriteString(m.otpInput.View())
	}

	if m.busy {
		fmt.Fprintf(&b, "\n\n%s %s", m.spinner.View(), m.busyMsg)
	}
	if m.errText != "" {
		b.WriteString("\n\n")
		b.WriteString(red.Render(m.errText))
	}
	b.WriteString("\n\n")
	b.WriteString(gray.Render(loginHelp))
	b.WriteString("\n")
	return b.String()
}

// RunLoginTUI walks the email/OTP login flow and returns once the OTP was
// verified, or with an error when the flow failed or the user backed out.
func RunLoginTUI(opts LoginTUIOpts) error {
	model, err := tea.NewProgram(newLoginModel(&opts), tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("login screen: %w", err)
	}

	final, ok := model.(loginModel)
	if !ok {
		return nil
	}
	if final.errText != "" {
		return fmt.Errorf("login interrupted: %s", final.errText)
	}
	// Quitting from the email screen means the user backed out before
	// any OTP was verified.
	if final.step == stepEmail {
		return fmt.Errorf("login cancelled")
	}
	return nil
}
