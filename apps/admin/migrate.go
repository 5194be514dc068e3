package main

import "github.com/liamAduDonkor/adesua-sub000/storage/database"

var gooseRunFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}
