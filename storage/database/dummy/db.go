package dummydb

import (
	"sync"

	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
)

type (
	// DB is an in-memory database for tests and local runs.
	DB struct {
		metric *metricTable
		org    *orgTable
		report *reportTables
	}

	metricTable struct {
		sync.RWMutex
		rows []metric.Record
	}

	orgUnit struct {
		id, parentID, kind, code string
	}

	orgTable struct {
		sync.RWMutex
		units       map[string]orgUnit
		assignments map[string]map[string][]string // {user: {kind: [target]}}
	}

	// definitions and instances share a lock so that cascades are atomic.
	reportTables struct {
		sync.RWMutex
		definitions map[string]*report.Definition
		instances   map[string]*report.Instance
	}
)

func Open() (*DB, error) {
	db := &DB{
		metric: &metricTable{},
		org: &orgTable{
			units:       make(map[string]orgUnit),
			assignments: make(map[string]map[string][]string),
		},
		report: &reportTables{
			definitions: make(map[string]*report.Definition),
			instances:   make(map[string]*report.Instance),
		},
	}
	return db, nil
}
