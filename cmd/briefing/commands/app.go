package commands

import (
	"database/sql"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/content"
	"github.com/teranos/briefing/delivery"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/mail"
	"github.com/teranos/briefing/pulse/schedule"
	"github.com/teranos/briefing/refresh"
	"github.com/teranos/briefing/render"
	"github.com/teranos/briefing/variables"
	"github.com/teranos/briefing/warehouse"
)

// app is the wired delivery stack shared by serve and the jobs commands.
type app struct {
	cfg        *am.Config
	db         *sql.DB
	warehouse  *warehouse.SQLConnector
	engine     *refresh.Engine
	mail       *mail.RateLimited
	jobs       *schedule.Store
	executions *schedule.ExecutionStore
	svc        *delivery.Service
}

// newApp loads configuration, opens the database and the warehouse and
// builds the delivery service over them.
func newApp(dbPath string) (*app, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid configuration"),
			"run 'briefing am validate' for details")
	}

	database, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	wh, err := warehouse.Open(cfg.Warehouse.Driver, cfg.Warehouse.DSN, warehouse.Options{
		QueryTimeout:     cfg.QueryTimeout(),
		MaxRows:          cfg.Warehouse.MaxRows,
		QueriesPerSecond: cfg.Warehouse.QueriesPerSecond,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	transport, err := mail.New(cfg.Mail)
	if err != nil {
		wh.Close()
		database.Close()
		return nil, err
	}

	renderer, err := render.New()
	if err != nil {
		wh.Close()
		database.Close()
		return nil, errors.Wrap(err, "failed to load email skeletons")
	}

	a := &app{
		cfg:        cfg,
		db:         database,
		warehouse:  wh,
		engine:     refresh.NewEngine(wh, cfg.Refresh.MaxConcurrency),
		mail:       transport,
		jobs:       schedule.NewStore(database),
		executions: schedule.NewExecutionStore(database),
	}
	store := content.NewStore(database)
	a.svc, err = delivery.NewService(delivery.Deps{
		Jobs:       a.jobs,
		Executions: a.executions,
		Content:    store,
		Resolver:   delivery.NewContentResolver(store, a.engine),
		Variables:  variables.NewResolver(wh),
		Renderer:   renderer,
		Mail:       transport,
		Config:     cfg.Delivery,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// reload applies the settings that can change while serving.
func (a *app) reload(cfg *am.Config) error {
	a.mail.SetLimit(cfg.Mail.MaxPerMinute)
	a.engine.SetMaxConcurrency(cfg.Refresh.MaxConcurrency)
	a.svc.UpdateConfig(cfg.Delivery)
	return nil
}

// Close releases the warehouse and database handles.
func (a *app) Close() error {
	return errors.CombineErrors(a.warehouse.Close(), a.db.Close())
}
