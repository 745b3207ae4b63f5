package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/folio/internal/domain/documents"
	"github.com/ehr/folio/internal/domain/filing"
)

type fileOptions struct {
	docType     string
	docNumber   string
	observation string
	operator    string
	pickCode    string
	yes         bool
}

func fileCmd() *cobra.Command {
	var opts fileOptions
	cmd := &cobra.Command{
		Use:   "file [CODE=path.pdf ...]",
		Short: "Identify a patient, book the encounter and file local PDFs",
		Long: `Runs the whole folio flow without the desktop shell. Each argument pairs a
type code with a PDF path, e.g. 12=ordenes.pdf. With --pick and no arguments a
file dialog selects the PDFs, all filed under the --pick code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runFile(cmd.Context(), cfg.DefaultOperator, opts, args, logger, func(ctx context.Context) (*app, error) {
				return buildApp(ctx, cfg, logger, filing.WithScheduler(func(_ time.Duration, f func()) { f() }))
			})
		},
	}
	cmd.Flags().StringVar(&opts.docType, "doc-type", "", "document type (histipdoc), e.g. CC")
	cmd.Flags().StringVar(&opts.docNumber, "doc-number", "", "document number (hisckey)")
	cmd.Flags().StringVar(&opts.observation, "observation", "", "observation filed with every record")
	cmd.Flags().StringVar(&opts.operator, "operator", "", "registering user, defaults to DEFAULT_OPERATOR")
	cmd.Flags().StringVar(&opts.pickCode, "pick", "", "open a file dialog and file the selection under this code")
	cmd.Flags().BoolVar(&opts.yes, "yes", false, "skip the confirmation dialog")
	cmd.MarkFlagRequired("doc-type")
	cmd.MarkFlagRequired("doc-number")
	return cmd
}

type assignment struct {
	Code string
	Path string
}

// parseAssignments reads CODE=path arguments. Codes are normalized against
// the catalog.
func parseAssignments(args []string) ([]assignment, error) {
	out := make([]assignment, 0, len(args))
	for _, arg := range args {
		raw, path, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("argument %q: expected CODE=path.pdf", arg)
		}
		code, ok := documents.NormalizeCode(raw)
		if !ok {
			return nil, fmt.Errorf("argument %q: %w", arg, documents.ErrInvalidTypeCode)
		}
		out = append(out, assignment{Code: code, Path: strings.TrimSpace(path)})
	}
	return out, nil
}

func pickAssignments(code string) ([]assignment, error) {
	normalized, ok := documents.NormalizeCode(code)
	if !ok {
		return nil, fmt.Errorf("--pick %q: %w", code, documents.ErrInvalidTypeCode)
	}
	paths, err := zenity.SelectFileMultiple(
		zenity.Title("Select scanned documents"),
		zenity.FileFilters{
			{Name: "PDF documents", Patterns: []string{"*.pdf", "*.PDF"}},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return nil, nil
		}
		return nil, fmt.Errorf("file picker: %w", err)
	}
	out := make([]assignment, 0, len(paths))
	for _, p := range paths {
		out = append(out, assignment{Code: normalized, Path: p})
	}
	return out, nil
}

// dialogConfirmer asks the close-folio question in a native dialog.
func dialogConfirmer() filing.Confirmer {
	return filing.ConfirmFunc(func(ctx context.Context, p filing.Prompt) (bool, error) {
		err := zenity.Question(p.Message,
			zenity.Title(p.Title),
			zenity.OKLabel(p.Accept),
			zenity.CancelLabel(p.Decline),
			zenity.QuestionIcon,
			zenity.Context(ctx),
		)
		if errors.Is(err, zenity.ErrCanceled) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

func runFile(ctx context.Context, defaultOperator string, opts fileOptions, args []string, logger zerolog.Logger, build func(context.Context) (*app, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var assignments []assignment
	var err error
	if len(args) == 0 && opts.pickCode != "" {
		assignments, err = pickAssignments(opts.pickCode)
	} else {
		assignments, err = parseAssignments(args)
	}
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return errors.New("no documents to file")
	}
	for _, asg := range assignments {
		if !documents.IsAcceptedDocument(asg.Path, "") {
			return fmt.Errorf("%s is not a PDF document", asg.Path)
		}
	}

	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	svc := a.svc

	id, err := svc.Identify(ctx, opts.docType, opts.docNumber)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	fmt.Fprintf(os.Stdout, "identified %s %s (hiscsec %s)\n", id.DocumentType, id.DocumentNumber, id.SecondaryKey)

	report, err := svc.Book(ctx)
	if err != nil {
		return fmt.Errorf("book encounter: %w", err)
	}
	for _, line := range report.Lines {
		fmt.Fprintf(os.Stdout, "  [%s] %s\n", line.Level, line.Message)
	}
	if !report.Booked {
		return errors.New("encounter not booked, nothing filed")
	}
	if opts.observation != "" {
		if err := svc.SetObservation(opts.observation); err != nil {
			return err
		}
	}

	sources := make([]documents.Source, 0, len(assignments))
	for _, asg := range assignments {
		src, err := documents.NewFileSource(asg.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", asg.Path, err)
		}
		sources = append(sources, src)
	}
	attached, err := svc.AttachSources(ctx, sources...)
	if err != nil {
		return err
	}
	for i, doc := range attached.Accepted {
		if _, err := svc.SetTypeCode(doc.ID, assignments[i].Code); err != nil {
			return fmt.Errorf("%s: %w", doc.Name, err)
		}
	}

	operator := opts.operator
	if operator == "" {
		operator = defaultOperator
	}

	var confirmer filing.Confirmer = dialogConfirmer()
	if opts.yes {
		confirmer = filing.Answer(true)
	}
	res, err := svc.SaveWith(ctx, operator, confirmer)
	if err != nil {
		return err
	}
	return printResult(res)
}

func printResult(res *filing.Result) error {
	fmt.Fprintf(os.Stdout, "%s: %s\n", res.Outcome, res.Message)
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stdout, "  warning: %s\n", w)
	}
	for _, inv := range res.Invalid {
		fmt.Fprintf(os.Stdout, "  invalid: %s (%s)\n", inv.Name, inv.Reason)
	}
	for _, f := range res.Filed {
		fmt.Fprintf(os.Stdout, "  filed %s -> %s\n", f.Name, f.DestinationPath)
	}
	for _, f := range res.CopyFailures {
		fmt.Fprintf(os.Stdout, "  not copied %s -> %s: %s\n", f.Name, f.DestinationPath, f.Error)
	}
	switch res.Outcome {
	case filing.OutcomeCompleted, filing.OutcomeDeclined:
		return nil
	default:
		return fmt.Errorf("filing %s", res.Outcome)
	}
}
