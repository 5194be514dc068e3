package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scheduler"
)

var errHelp = errors.New("help provided")

type (
	directoryWriter interface {
		UpsertOrgUnit(ctx context.Context, id, parentID, kind, code string) error
		Assign(ctx context.Context, userID, kind string, targetIDs ...string) error
	}

	commandLine struct {
		db        *sql.DB
		reports   *report.Service
		manager   *scheduler.Manager
		pool      *report.Pool
		metrics   metric.Writer
		directory directoryWriter
		out       io.Writer
		now       func() time.Time
	}
)

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                              - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  submit -definition ID                               - queue a new instance of a definition")
	fmt.Fprintln(cli.out, "  retry -instance ID                                  - queue a failed instance again")
	fmt.Fprintln(cli.out, "  generate                                            - generate every queued instance now")
	fmt.Fprintln(cli.out, "  tick [-at RFC3339]                                  - run one scheduling pass")
	fmt.Fprintln(cli.out, "  seed -file FILE.csv                                 - append metric records")
	fmt.Fprintln(cli.out, "  orgunit -id ID -kind KIND -code CODE [-parent ID]   - add or update an organization unit")
	fmt.Fprintln(cli.out, "  assign -user ID -kind KIND -targets ID[,ID...]      - assign a user to what they may see")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	submitCmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	submitDefinition := submitCmd.String("definition", "", "The id of the report definition.")

	retryCmd := flag.NewFlagSet("retry", flag.ContinueOnError)
	retryInstance := retryCmd.String("instance", "", "The id of the failed instance.")

	tickCmd := flag.NewFlagSet("tick", flag.ContinueOnError)
	tickAt := tickCmd.String("at", "", "The time of the pass (RFC 3339); defaults to now.")

	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedFile := seedCmd.String("file", "", "A CSV file of metric records.")

	orgUnitCmd := flag.NewFlagSet("orgunit", flag.ContinueOnError)
	orgUnitID := orgUnitCmd.String("id", "", "The id of the unit.")
	orgUnitParent := orgUnitCmd.String("parent", "", "The id of the parent unit; empty for regions.")
	orgUnitKind := orgUnitCmd.String("kind", "", "region, school or class.")
	orgUnitCode := orgUnitCmd.String("code", "", "The code records are labelled with.")

	assignCmd := flag.NewFlagSet("assign", flag.ContinueOnError)
	assignUser := assignCmd.String("user", "", "The id of the user.")
	assignKind := assignCmd.String("kind", "", "school, class, child or entity.")
	assignTargets := assignCmd.String("targets", "", "Comma separated ids.")

	for _, fs := range []*flag.FlagSet{submitCmd, retryCmd, tickCmd, seedCmd, orgUnitCmd, assignCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		return cli.migrate(args[2:])
	case "submit":
		if err := submitCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *submitDefinition == "" {
			submitCmd.Usage()
			return errHelp
		}
		return cli.submit(ctx, *submitDefinition)
	case "retry":
		if err := retryCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *retryInstance == "" {
			retryCmd.Usage()
			return errHelp
		}
		return cli.retry(ctx, *retryInstance)
	case "generate":
		return cli.generate(ctx)
	case "tick":
		if err := tickCmd.Parse(args[2:]); err != nil {
			return err
		}
		at := cli.now()
		if *tickAt != "" {
			t, err := time.Parse(time.RFC3339, *tickAt)
			if err != nil {
				return fmt.Errorf("-at must be an RFC 3339 time (got '%s')", *tickAt)
			}
			at = t
		}
		return cli.tick(ctx, at)
	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedFile == "" {
			seedCmd.Usage()
			return errHelp
		}
		return cli.seed(ctx, *seedFile)
	case "orgunit":
		if err := orgUnitCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *orgUnitID == "" || *orgUnitKind == "" || *orgUnitCode == "" {
			orgUnitCmd.Usage()
			return errHelp
		}
		return cli.directory.UpsertOrgUnit(ctx, *orgUnitID, *orgUnitParent, *orgUnitKind, *orgUnitCode)
	case "assign":
		if err := assignCmd.Parse(args[2:]); err != nil {
			return err
		}
		targets := splitList(*assignTargets)
		if *assignUser == "" || *assignKind == "" || len(targets) == 0 {
			assignCmd.Usage()
			return errHelp
		}
		return cli.directory.Assign(ctx, *assignUser, *assignKind, targets...)
	default:
		cli.printUsage()
		return errHelp
	}
}
