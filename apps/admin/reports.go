package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) submit(ctx context.Context, definitionID string) error {
	inst, err := cli.reports.SubmitDefinition(ctx, definitionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "instance %s %s\n", inst.ID, inst.Status)
	return nil
}

func (cli *commandLine) retry(ctx context.Context, instanceID string) error {
	inst, err := cli.reports.Retry(ctx, instanceID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "instance %s %s (attempt %d of %d)\n", inst.ID, inst.Status, inst.Attempts+1, cli.reports.MaxRetries()+1)
	return nil
}

func (cli *commandLine) generate(ctx context.Context) error {
	n, err := cli.pool.Drain(ctx)
	cli.reports.Wait()
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d instance(s) generated\n", n)
	return nil
}

func (cli *commandLine) tick(ctx context.Context, at time.Time) error {
	res, err := cli.manager.Tick(ctx, at)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "due=%d submitted=%d skipped=%d failed=%d\n", res.Due, res.Submitted, res.Skipped, res.Failed)
	return nil
}
