package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"prospectpipe/internal/apify"
	"prospectpipe/internal/export"
)

var fetchDataset bool

var fetchCmd = &cobra.Command{
	Use:   "fetch [run-id]",
	Short: "Fetch contacts from a finished Apify run",
	Long: `Downloads the dataset of a finished Apify run and exports the contacts.
Useful when a pipeline run died after the scrape started, or to re-export
an old run. With --dataset the argument is a dataset ID instead of a run
ID. When no argument is given, the ID is prompted for interactively.`,
	Args: cobra.MaximumNArgs(1),
	RunE: fetchRun,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchDataset, "dataset", false, "treat the argument as a dataset ID")
}

func fetchRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireApify(); err != nil {
		return err
	}

	id := ""
	if len(args) > 0 {
		id = strings.TrimSpace(args[0])
	}
	if id == "" {
		id, err = promptForID()
		if err != nil {
			return err
		}
	}
	if id == "" {
		return fmt.Errorf("no run ID given")
	}

	client := apify.NewClient(apify.Config{
		Token:        cfg.Apify.Token,
		ActorID:      cfg.Apify.ActorID,
		BaseURL:      cfg.Apify.BaseURL,
		PollInterval: cfg.GetPollInterval(),
		RunTimeout:   cfg.GetRunTimeout(),
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	meta := export.Metadata{}
	datasetID := id
	if !fetchDataset {
		run, err := client.GetRun(ctx, id)
		if err != nil {
			return err
		}
		if !run.Finished() {
			return fmt.Errorf("run %s is still %s; wait for it to finish", id, run.Status)
		}
		datasetID = run.DefaultDatasetID
		meta.ApifyRunID = run.ID
	}
	meta.DatasetID = datasetID

	items, err := client.DatasetItems(ctx, datasetID)
	if err != nil {
		return err
	}

	contacts := export.FromItems(items)
	writer := export.NewWriter(outputDir(cfg), cfg.Output.FilePrefix)
	artifacts, err := writer.Save(contacts, meta)
	if err != nil {
		return err
	}

	fmt.Println(styleSuccess.Render(fmt.Sprintf("Exported %d contacts", len(contacts))))
	fmt.Println("  " + artifacts.CSVPath)
	fmt.Println("  " + artifacts.JSONPath)
	return nil
}

// idPromptModel is a minimal one-field prompt.
type idPromptModel struct {
	input textinput.Model
	done  bool
}

func newIDPrompt() idPromptModel {
	ti := textinput.New()
	ti.Placeholder = "Apify run ID"
	ti.CharLimit = 64
	ti.Width = 40
	ti.Focus()
	return idPromptModel{input: ti}
}

func (m idPromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m idPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m idPromptModel) View() string {
	if m.done {
		return ""
	}
	return styleTitle.Render("Fetch Apify run") + "\n" + m.input.View() + "\n" + styleMuted.Render("enter to fetch, esc to cancel") + "\n"
}

func promptForID() (string, error) {
	final, err := tea.NewProgram(newIDPrompt()).Run()
	if err != nil {
		return "", err
	}
	m, ok := final.(idPromptModel)
	if !ok || !m.done {
		return "", nil
	}
	return strings.TrimSpace(m.input.Value()), nil
}
