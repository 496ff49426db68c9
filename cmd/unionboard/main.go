package main

import (
	"fmt"
	"hash"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	argon2 "github.com/mdouchement/simple-argon2"
	"github.com/mdouchement/unionboard/internal/database"
	"github.com/mdouchement/unionboard/internal/logger"
	"github.com/mdouchement/unionboard/internal/realtime"
	"github.com/mdouchement/unionboard/internal/server"
	"github.com/mdouchement/unionboard/internal/server/service"
	"github.com/mdouchement/unionboard/internal/storage"
	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/cms/content"
	"github.com/muesli/coral"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

const (
	dbname      = "unionboard.db"
	objectsname = "objects"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfg string
)

func main() {
	c := &coral.Command{
		Use:     "unionboard",
		Short:   "Content backend of the union website",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    coral.ExactArgs(0),
	}
	initCmd.Flags().StringVarP(&cfg, "config", "c", "", "Configuration file")
	c.AddCommand(initCmd)

	reindexCmd.Flags().StringVarP(&cfg, "config", "c", "", "Configuration file")
	c.AddCommand(reindexCmd)

	serverCmd.Flags().StringVarP(&cfg, "config", "c", "", "Configuration file")
	c.AddCommand(serverCmd)

	sweepCmd.Flags().StringVarP(&cfg, "config", "c", "", "Configuration file")
	c.AddCommand(sweepCmd)

	c.AddCommand(hashCmd)

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

var (
	initCmd = &coral.Command{
		Use:   "init",
		Short: "Init the database",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := load()
			if err != nil {
				return err
			}

			return database.StormInit(dbnameWithPath(konf.String("database_path")))
		},
	}

	//
	reindexCmd = &coral.Command{
		Use:   "reindex",
		Short: "Reindex the database",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := load()
			if err != nil {
				return err
			}

			return database.StormReIndex(dbnameWithPath(konf.String("database_path")))
		},
	}

	//
	sweepCmd = &coral.Command{
		Use:   "sweep",
		Short: "Remove the stored objects no record references",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := load()
			if err != nil {
				return err
			}
			logger := logger.New(konf.String("log_file"))

			db, err := database.StormOpen(dbnameWithPath(konf.String("database_path")))
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			fs, err := storage.New(storagePath(konf))
			if err != nil {
				return err
			}

			removed, err := sweeper(konf, db, fs, logger).Execute()
			for _, key := range removed {
				fmt.Println(key)
			}
			return err
		},
	}

	//
	hashCmd = &coral.Command{
		Use:   "hash",
		Short: "Hash a password for the admins section of the configuration",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			password, err := readline.Password("Password: ")
			if err != nil {
				return errors.Wrap(err, "could not read password from stdin")
			}
			if len(password) == 0 {
				return errors.New("empty password")
			}

			hash, err := argon2.GenerateFromPasswordString(string(password), argon2.Default)
			if err != nil {
				return errors.Wrap(err, "could not hash password")
			}

			fmt.Println(hash)
			return nil
		},
	}

	//
	//
	serverCmd = &coral.Command{
		Use:   "server",
		Short: "Start server",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := load()
			if err != nil {
				return err
			}

			if konf.String("secret_key") == "" {
				return errors.New("secret_key not found")
			}

			logger := logger.New(konf.String("log_file"))

			admins, err := admins(konf)
			if err != nil {
				return err
			}
			if len(admins) == 0 {
				logger.Warn("No admin configured, the content is read-only")
			}

			db, err := database.StormOpen(dbnameWithPath(konf.String("database_path")))
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			fs, err := storage.New(storagePath(konf))
			if err != nil {
				return err
			}

			broker, err := broker(konf, logger)
			if err != nil {
				return err
			}
			defer broker.Close()

			if schedule := konf.String("sweep.schedule"); schedule != "" {
				sweep := sweeper(konf, db, fs, logger)

				cr := cron.New()
				err = cr.AddFunc(schedule, func() {
					removed, err := sweep.Execute()
					if err != nil {
						logger.WithError(err).Error("Could not sweep objects")
					}
					logger.WithField("count", len(removed)).Info("Sweep done")
				})
				if err != nil {
					return errors.Wrap(err, "invalid sweep schedule")
				}

				cr.Start()
				defer cr.Stop()
			}

			collections, public := collections(konf)
			engine := server.EchoEngine(server.IOC{
				Version:      version,
				Database:     db,
				Storage:      fs,
				Broker:       broker,
				Logger:       logger,
				SigningKey:   kdf(32, konf.MustBytes("secret_key")),
				TokenTTL:     konf.Duration("token_ttl"),
				Admins:       admins,
				Collections:  collections,
				PublicCreate: public,
				Buckets:      buckets(konf),
				PingPeriod:   konf.Duration("realtime.ping_period"),
			})
			server.PrintRoutes(engine)

			address := konf.String("address")
			message := "could not run server"
			log.Printf("Server listening on %s\n", address)
			parts := strings.Split(address, ":")
			if len(parts) == 2 && parts[0] == "unix" {
				socketFile := parts[1]
				if _, err := os.Stat(socketFile); err == nil {
					log.Printf("Removing existing %s\n", socketFile)
					os.Remove(socketFile)
				}
				defer os.Remove(socketFile)
				listener, err := net.Listen(parts[0], socketFile)
				if err != nil {
					return err
				}
				return errors.Wrap(engine.Server.Serve(listener), message)
			}
			return errors.Wrap(engine.Start(address), message)
		},
	}
)

func load() (*koanf.Koanf, error) {
	konf := koanf.New(".")
	if err := konf.Load(file.Provider(cfg), yaml.Parser()); err != nil {
		return nil, errors.Wrap(err, "could not load configuration")
	}
	return konf, nil
}

func dbnameWithPath(path string) string {
	if len(path) == 0 {
		return dbname
	}
	return filepath.Join(path, dbname)
}

func storagePath(konf *koanf.Koanf) string {
	if path := konf.String("storage_path"); path != "" {
		return path
	}
	return filepath.Join(konf.String("database_path"), objectsname)
}

func kdf(l int, k []byte) []byte {
	nhash := func() hash.Hash {
		h, err := blake2b.New256(nil)
		if err != nil {
			panic(err)
		}
		return h
	}

	payload := make([]byte, l)

	kdf := hkdf.New(nhash, k, nil, nil)
	_, err := io.ReadFull(kdf, payload)
	if err != nil {
		panic(err)
	}

	return payload
}

// admins returns the configured administrators as email => argon2 hash.
// Emails contain the koanf delimiter so they are listed rather than used as keys.
func admins(konf *koanf.Koanf) (map[string]string, error) {
	var entries []struct {
		Email        string `koanf:"email"`
		PasswordHash string `koanf:"password_hash"`
	}
	if err := konf.Unmarshal("admins", &entries); err != nil {
		return nil, errors.Wrap(err, "could not parse admins")
	}

	admins := map[string]string{}
	for _, entry := range entries {
		email := strings.ToLower(strings.TrimSpace(entry.Email))
		if email == "" || entry.PasswordHash == "" {
			return nil, errors.Errorf("admin %q: email and password_hash are required", entry.Email)
		}
		admins[email] = entry.PasswordHash
	}
	return admins, nil
}

func collections(konf *koanf.Koanf) (names, public []string) {
	if konf.Exists("collections") {
		return konf.Strings("collections"), konf.Strings("public_create")
	}

	for _, c := range content.Collections() {
		names = append(names, c.Name)
		if c.PublicCreate {
			public = append(public, c.Name)
		}
	}
	return names, public
}

func buckets(konf *koanf.Koanf) map[string]int64 {
	buckets := map[string]int64{}
	if konf.Exists("buckets") {
		for _, name := range konf.MapKeys("buckets") {
			buckets[name] = konf.Int64("buckets." + name + ".max_size")
		}
		return buckets
	}

	for _, rule := range cms.DefaultAttachmentRules {
		buckets[rule.Bucket] = rule.MaxSize
	}
	return buckets
}

func broker(konf *koanf.Koanf, logger logrus.FieldLogger) (realtime.Broker, error) {
	prefix := konf.String("realtime.subject_prefix")

	switch {
	case konf.String("realtime.nats_url") != "":
		return realtime.DialNATS(konf.String("realtime.nats_url"), prefix, logger)
	case konf.Bool("realtime.embedded"):
		port := -1
		if konf.Exists("realtime.port") {
			port = konf.Int("realtime.port")
		}
		return realtime.EmbeddedNATS(port, prefix, logger)
	default:
		return realtime.NewMemory(), nil
	}
}

func sweeper(konf *koanf.Koanf, db database.Client, fs *storage.FS, logger logrus.FieldLogger) service.SweepService {
	grace := 24 * time.Hour
	if konf.Exists("sweep.grace_period") {
		grace = konf.Duration("sweep.grace_period")
	}

	names, _ := collections(konf)
	var bucketNames []string
	for name := range buckets(konf) {
		bucketNames = append(bucketNames, name)
	}

	return service.NewSweep(service.SweepParams{
		Params: service.Params{
			Database: db,
			Logger:   logger,
		},
		Storage:     fs,
		Collections: names,
		Buckets:     bucketNames,
		GracePeriod: grace,
	})
}
