package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/liamAduDonkor/adesua-sub000/apps/api/di/dig"
	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scheduler"
	"github.com/liamAduDonkor/adesua-sub000/storage/database"
	sqlxrepos "github.com/liamAduDonkor/adesua-sub000/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	cli, closeDB := newCommandLine(os.Args)
	err := cli.run(os.Args)
	closeDB()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// newCommandLine connects to the database. Migrations run on a bare connection,
// every other command gets the fully wired (and migrated) report engine.
func newCommandLine(args []string) (*commandLine, func()) {
	cli := &commandLine{out: os.Stdout, now: func() time.Time { return time.Now().UTC() }}

	if len(args) < 2 {
		return cli, func() {}
	}
	if args[1] == "migrate" {
		conf := core.NewConfig()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		errAndDie(database.CreateIfNotExist(ctx, conf))
		db, err := database.Open(ctx, conf)
		errAndDie(err)
		cli.db = db.DB
		return cli, func() { _ = db.Close() }
	}

	var db *sqlx.DB
	c := dig_container.New()
	errAndDie(c.Invoke(func(
		conf *core.Config,
		conn *sqlx.DB,
		reports *report.Service,
		manager *scheduler.Manager,
		pool *report.Pool,
	) error {
		if err := core.ParseEmailTemplates(conf); err != nil {
			return err
		}

		db = conn
		cli.db = conn.DB
		cli.reports = reports
		cli.manager = manager
		cli.pool = pool
		cli.metrics = sqlxrepos.NewMetricStore(conn)
		cli.directory = sqlxrepos.NewDirectory(conn)
		return nil
	}))
	return cli, func() {
		cli.reports.Wait()
		_ = db.Close()
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(fmt.Sprintf("%+v", err))
	}
}

var (
	_ metric.Writer   = (*sqlxrepos.MetricStore)(nil)
	_ directoryWriter = (*sqlxrepos.Directory)(nil)
)
