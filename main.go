package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"posty/crud"
	"posty/errs"
	"posty/http"
	"posty/notify"
	"posty/storage"
)

// main is the app's entry point.
func main() {
	// Check if the flag "-prod" to has been provided. It means that we're running in production.
	productionBool := flag.Bool("prod", false, "Provide this flag in production to ensure that a .config.json file is provided before the application starts.")
	resetBool := flag.Bool("reset", false, "Drop and recreate all tables before starting.")
	seedBool := flag.Bool("seed", false, "Fill the database with sample users, posts and likes before starting. Best combined with -reset.")
	flag.Parse()

	// Load configuration from a .config.json file if present, otherwise use the default dev setup.
	// If *productionBool evaluates to true, that means we're in production. In that case the
	// .config.json file is required and the app will panic if no file is found.
	config, err := LoadConfig(*productionBool)
	must(err)

	log := newLogger(config)
	errs.Log = log

	// Open a database connection and execute migrations.
	db := NewDB(config.Database.ConnectionInfo())
	must(Open(db, config.IsProd()))
	defer Close(db)
	if *resetBool {
		log.Warn("dropping all tables")
		must(DestructiveReset(db))
	} else {
		must(AutoMigrate(db))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to redis, which carries the notification queue.
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("could not connect to redis at %s: %v", config.Redis.Addr, err)
	}

	// Start the crud services.
	services, err := crud.NewServices(
		db.Gorm,
		crud.WithUser(config.Pepper),
		crud.WithToken(config.HMACKey),
		crud.WithPost(),
		crud.WithLike(notify.NewRedisQueue(rdb)),
	)
	must(err)

	if *seedBool {
		must(Seed(ctx, db, services, log))
	}

	// Start the notification worker. Without an SMTP host mails only get logged.
	var mailer notify.Mailer = notify.NewLogMailer(log)
	if config.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(config.SMTP, log)
	}
	var wg sync.WaitGroup
	must(notify.NewWorker(rdb, services.User, mailer, log).Start(ctx, &wg))

	// Set up a webserver.
	server := http.NewServer(
		config.HTTP(),
		services.User,
		services.Token,
		services.Post,
		services.Like,
		storage.NewImageService(config.PublicDir),
		log,
	)

	// Serve the app until we're told to stop.
	if err := server.Run(ctx, config.Port); err != nil {
		log.Errorf("http server: %v", err)
		stop()
	}
	wg.Wait()
	log.Info("bye")
}

// newLogger returns the app's logger, writing JSON to stdout.
func newLogger(config Config) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stdout
	log.Formatter = &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
	}
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.Level = level
	return log
}

// must is a little helper for shortening the panic instruction.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
