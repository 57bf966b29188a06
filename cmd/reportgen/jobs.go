package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/document"
	"github.com/dusk-indust/reportgen/internal/orchestrator"
)

// runGenerate starts a job in-process and waits for it to finish.
func (c *cli) runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(c.out)
	follow := fs.Bool("follow", false, "print section events as they happen")
	regenerate := fs.Bool("regenerate", false, "replace a completed report")
	sectionList := fs.String("sections", "", "comma-separated section ids (default: the variant's set)")
	pos, err := parseArgs(fs, args, 2, "<subject> <variant>")
	if err != nil {
		return err
	}
	sections, err := parseIDs(*sectionList)
	if err != nil {
		return err
	}

	a, closeApp, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	var events <-chan orchestrator.Event
	if *follow {
		ch, unsubscribe := a.ctrl.Events().Subscribe(256)
		defer unsubscribe()
		events = ch
	}

	res, err := a.ctrl.Initiate(ctx, orchestrator.InitiateRequest{
		SubjectID:  pos[0],
		Variant:    pos[1],
		Regenerate: *regenerate,
		Sections:   sections,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s job %s, order %v\n", titleStyle.Render("started"), res.JobID, res.Order)

	if err := c.waitForJob(ctx, a, events, orchestrator.JobKey(pos[0], pos[1])); err != nil {
		return err
	}

	p, err := a.ctrl.GetProgress(ctx, pos[0], pos[1])
	if errors.Is(err, orchestrator.ErrJobNotFound) {
		return errors.New("every section failed; the job was removed")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, renderProgress(p))
	return nil
}

// waitForJob blocks until the controller is idle, printing events for key
// when events is non-nil.
func (c *cli) waitForJob(ctx context.Context, a *app, events <-chan orchestrator.Event, key string) error {
	done := make(chan error, 1)
	go func() { done <- a.ctrl.Wait(ctx) }()

	show := func(ev orchestrator.Event) {
		if orchestrator.JobKey(ev.SubjectID, ev.Variant) == key {
			fmt.Fprintln(c.out, renderEvent(ev))
		}
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			show(ev)
		case err := <-done:
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return err
					}
					show(ev)
				default:
					return err
				}
			}
		}
	}
}

func (c *cli) runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(c.out)
	asJSON := fs.Bool("json", false, "print the raw progress document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	// No arguments lists every job.
	if fs.NArg() != 0 && fs.NArg() != 2 {
		return fmt.Errorf("status: expected <subject> <variant> or nothing")
	}

	a, closeApp, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	var doc any
	if fs.NArg() == 0 {
		jobs, err := a.ctrl.ListJobs(ctx)
		if err != nil {
			return err
		}
		doc = jobs
		if !*asJSON {
			fmt.Fprintln(c.out, renderJobs(jobs))
			return nil
		}
	} else {
		p, err := a.ctrl.GetProgress(ctx, fs.Arg(0), fs.Arg(1))
		if err != nil {
			return err
		}
		doc = p
		if !*asJSON {
			fmt.Fprintln(c.out, renderProgress(p))
			return nil
		}
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (c *cli) runRegenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("regenerate", flag.ContinueOnError)
	fs.SetOutput(c.out)
	pos, err := parseArgs(fs, args, 3, "<subject> <variant> <section-id>")
	if err != nil {
		return err
	}
	sectionID, err := strconv.Atoi(pos[2])
	if err != nil {
		return fmt.Errorf("section id %q is not a number", pos[2])
	}

	a, closeApp, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	res, err := a.ctrl.RegenerateSection(ctx, pos[0], pos[1], sectionID)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("section %d (%s): %s after %d attempts; job %s",
		res.SectionID, res.Name, res.Status, res.Attempts, res.JobStatus)
	fmt.Fprintln(c.out, statusStyle(string(res.Status)).Render(line))
	if res.Error != "" {
		fmt.Fprintln(c.out, errStyle.Render(res.ErrorKind+": "+res.Error))
	}
	return nil
}

func (c *cli) runDocument(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("document", flag.ContinueOnError)
	fs.SetOutput(c.out)
	formatName := fs.String("format", "markdown", "structured, plain or markdown")
	outPath := fs.String("o", "", "write to this file instead of stdout")
	pos, err := parseArgs(fs, args, 2, "<subject> <variant>")
	if err != nil {
		return err
	}
	format, err := document.ParseFormat(*formatName)
	if err != nil {
		return err
	}

	a, closeApp, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	doc, err := a.ctrl.GetDocument(ctx, pos[0], pos[1])
	if err != nil {
		return err
	}
	data, err := document.Render(doc, format)
	if err != nil {
		return err
	}
	if *outPath == "" {
		_, err = c.out.Write(data)
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *outPath, err)
	}
	fmt.Fprintf(c.out, "wrote %s (%d sections)\n", *outPath, len(doc.Sections))
	return nil
}

func (c *cli) runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(c.out)
	if _, err := parseArgs(fs, args, 0, "no arguments"); err != nil {
		return err
	}

	a, closeApp, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	res, err := a.reaper.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d stalled sections failed\n", res.Count)
	for _, s := range res.Sections {
		fmt.Fprintf(c.out, "  %s section %d (last update %s) -> job %s\n",
			orchestrator.JobKey(s.SubjectID, s.Variant), s.SectionID,
			s.LastUpdated.Format("2006-01-02 15:04:05"), res.Jobs[s.JobID.String()])
	}
	return nil
}

// runCatalog prints the effective catalog and the order a variant would use.
func (c *cli) runCatalog(args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	fs.SetOutput(c.out)
	variant := fs.String("variant", catalog.VariantFull, "variant whose order to print")
	mermaid := fs.Bool("mermaid", false, "print the variant's dependency graph as Mermaid")
	if _, err := parseArgs(fs, args, 0, "no arguments"); err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	ids, err := cat.DefaultSections(*variant)
	if err != nil {
		return fmt.Errorf("%w: %q", orchestrator.ErrUnknownVariant, *variant)
	}
	if *mermaid {
		diagram, err := cat.Mermaid(*variant)
		if err != nil {
			return err
		}
		fmt.Fprint(c.out, diagram)
		return nil
	}
	fmt.Fprint(c.out, renderCatalog(cat, orchestrator.Schedule(ids, cat, nil)))
	return nil
}

func parseIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("section id %q is not a number", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
