package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/themobileprof/ceepilot/internal/interfaces"
	"github.com/themobileprof/ceepilot/internal/session"
	"github.com/themobileprof/ceepilot/pkg/models"
)

var errExit = errors.New("exit")

// REPL is the interactive estimator wizard
type REPL struct {
	fiches  interfaces.FicheStore
	history interfaces.SimulationStore
	logs    interfaces.CalculationLogger
	session *session.Session
	userID  string
	sel     models.Selection
	form    map[string]any
	out     io.Writer
}

// NewREPL creates a wizard for userID working in sess
func NewREPL(fiches interfaces.FicheStore, history interfaces.SimulationStore, logs interfaces.CalculationLogger,
	sess *session.Session, userID string, out io.Writer) *REPL {
	return &REPL{
		fiches:  fiches,
		history: history,
		logs:    logs,
		session: sess,
		userID:  userID,
		form:    make(map[string]any),
		out:     out,
	}
}

// Start reads commands from in until exit or end of input
func (repl *REPL) Start(in io.Reader) error {
	fmt.Fprintln(repl.out, "CEEPilot - CEE subsidy estimator")
	fmt.Fprintln(repl.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(repl.out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(repl.out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			fmt.Fprintln(repl.out)
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if err := repl.handleCommand(input); err != nil {
			if errors.Is(err, errExit) {
				fmt.Fprintln(repl.out, "Au revoir !")
				return nil
			}
			fmt.Fprintf(repl.out, "Error: %v\n\n", err)
		}
	}
}

// ExecuteNonInteractive runs a single command
func (repl *REPL) ExecuteNonInteractive(input string) error {
	return repl.handleCommand(input)
}

func (repl *REPL) handleCommand(input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	switch command {
	case "help":
		return repl.showHelp()
	case "exit", "quit":
		return errExit
	case "sectors":
		return repl.listSectors()
	case "fiches":
		return repl.listFiches(args)
	case "date":
		return repl.setSelection(args, &repl.sel.Date, "date")
	case "department":
		return repl.setSelection(args, &repl.sel.Department, "department")
	case "select":
		if len(args) != 1 {
			return fmt.Errorf("usage: select <fiche_code>")
		}
		return repl.selectFiche(args[0])
	case "set":
		if len(args) == 0 {
			return fmt.Errorf("usage: set <name>=<value> ...")
		}
		return repl.setValues(strings.TrimSpace(strings.TrimPrefix(input, "set")))
	case "unset":
		for _, name := range args {
			delete(repl.form, name)
		}
		return nil
	case "form":
		return repl.showForm()
	case "calc", "calculate":
		return repl.calculate()
	case "save":
		return repl.save()
	case "history":
		return repl.showHistory()
	case "logs":
		return repl.showLogs()
	default:
		return fmt.Errorf("unknown command %q, type 'help'", command)
	}
}

func (repl *REPL) showHelp() error {
	fmt.Fprintln(repl.out, `
Available Commands:
  sectors                 - List sectors and their typologies
  fiches [sector] [typo]  - List fiches
  date <YYYY-MM-DD>       - Set the date of the works
  department <code>       - Set the department of the works
  select <fiche_code>     - Select a fiche and load its calculation
  set name=value ...      - Fill form values (quote-free, one word per value)
  unset <name> ...        - Clear form values
  form                    - Show the parameters and current values
  calc                    - Run the calculation
  save                    - Save the last calculation
  history                 - Show saved simulations
  logs                    - Show recent calculation attempts
  exit, quit              - Exit`)
	return nil
}

func (repl *REPL) listSectors() error {
	sectors, err := repl.fiches.Sectors()
	if err != nil {
		return fmt.Errorf("failed to list sectors: %w", err)
	}
	if len(sectors) == 0 {
		fmt.Fprintln(repl.out, "No fiches installed.")
		return nil
	}
	for _, s := range sectors {
		typologies, err := repl.fiches.Typologies(s)
		if err != nil {
			return fmt.Errorf("failed to list typologies: %w", err)
		}
		fmt.Fprintf(repl.out, "• %s: %s\n", s, strings.Join(typologies, ", "))
	}
	return nil
}

func (repl *REPL) listFiches(args []string) error {
	filter := models.FicheFilter{}
	if len(args) > 0 {
		filter.Sector = args[0]
	}
	if len(args) > 1 {
		filter.Typology = args[1]
	}

	list, err := repl.fiches.ListFiches(filter)
	if err != nil {
		return fmt.Errorf("failed to list fiches: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(repl.out, "No matching fiches.")
		return nil
	}
	for _, f := range list {
		fmt.Fprintf(repl.out, "• %s  %s\n", f.Code, f.Name)
	}
	return nil
}

func (repl *REPL) setSelection(args []string, dst *string, name string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <value>", name)
	}
	*dst = args[0]
	return nil
}

func (repl *REPL) selectFiche(code string) error {
	fiche, err := repl.fiches.GetFiche(code)
	if err != nil {
		return err
	}
	if err := repl.session.Select(repl.sel, fiche); err != nil {
		return err
	}
	repl.form = make(map[string]any)

	fmt.Fprintf(repl.out, "✓ %s - %s\n", fiche.Code, fiche.Name)
	return repl.showForm()
}

func (repl *REPL) setValues(assignments string) error {
	for _, a := range strings.Fields(assignments) {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return fmt.Errorf("expected name=value, got %q", a)
		}
		repl.form[name] = value
	}
	return nil
}

func (repl *REPL) showForm() error {
	fiche := repl.session.Fiche()
	if fiche == nil {
		return session.ErrNoFiche
	}

	fmt.Fprintln(repl.out, "\nParameters:")
	for _, p := range repl.session.Parameters() {
		marker := " "
		if p.Required {
			marker = "*"
		}
		line := fmt.Sprintf("  %s %s", marker, p.Name)
		if label := fiche.Labels[p.Name]; label != "" {
			line += " - " + label
		}
		if opts := fiche.ParameterOptions[p.Name]; len(opts) > 0 {
			line += " [" + strings.Join(opts, "|") + "]"
		}
		if v, ok := repl.form[p.Name]; ok {
			line += fmt.Sprintf(" = %v", v)
		} else if p.HasDefault {
			line += fmt.Sprintf(" (default %v)", p.Default)
		}
		fmt.Fprintln(repl.out, line)
	}
	fmt.Fprintln(repl.out)
	return nil
}

func (repl *REPL) calculate() error {
	fiche := repl.session.Fiche()
	if fiche == nil {
		return session.ErrNoFiche
	}

	var logID int64
	if repl.logs != nil {
		logID, _ = repl.logs.LogCalculation(repl.userID, fiche.Code)
	}

	start := time.Now()
	res := repl.session.Calculate(repl.form)
	elapsed := time.Since(start)

	if repl.logs != nil && logID != 0 {
		status := "success"
		if !res.Success {
			status = "failed"
		}
		_ = repl.logs.UpdateLogStatus(logID, status, res.Error, elapsed.Milliseconds())
	}

	if !res.Success {
		fmt.Fprintf(repl.out, "✗ %s\n", res.Error)
		return nil
	}
	fmt.Fprintf(repl.out, "✓ %.2f kWh cumac = %.2f €\n", res.Cumacs, res.Euros)
	return nil
}

func (repl *REPL) save() error {
	sim, err := repl.session.LastSimulation(repl.userID)
	if err != nil {
		return err
	}
	if err := repl.history.Save(sim); err != nil {
		return err
	}
	fmt.Fprintf(repl.out, "✓ Saved simulation %s\n", sim.ID)
	return nil
}

func (repl *REPL) showHistory() error {
	page, err := repl.history.List(repl.userID, models.HistoryQuery{Desc: true})
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if page.Total == 0 {
		fmt.Fprintln(repl.out, "No saved simulations.")
		return nil
	}

	fmt.Fprintf(repl.out, "\nSaved simulations (%d):\n\n", page.Total)
	for _, s := range page.Items {
		fmt.Fprintf(repl.out, "• %s %s  %.2f kWh cumac  %.2f €\n", s.CreatedAt.Format("2006-01-02"), s.FicheCode, s.Cumacs, s.Euros)
		fmt.Fprintf(repl.out, "  %s\n", formatParams(s.Parameters))
	}
	fmt.Fprintln(repl.out)
	return nil
}

func (repl *REPL) showLogs() error {
	if repl.logs == nil {
		return nil
	}
	entries, err := repl.logs.RecentLogs(20)
	if err != nil {
		return err
	}

	fmt.Fprintln(repl.out, "\nRecent Calculations:")
	for _, e := range entries {
		fmt.Fprintf(repl.out, "• %s | Status: %s | Duration: %dms\n", e.FicheCode, e.Status, e.DurationMs)
		if e.Error != "" {
			fmt.Fprintf(repl.out, "  %s\n", e.Error)
		}
	}
	fmt.Fprintln(repl.out)
	return nil
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ", ")
}
