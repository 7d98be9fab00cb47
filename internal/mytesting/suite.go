package mytesting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/habiliai/agentmarket/internal/clock"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/habiliai/agentmarket/internal/mylog"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// Epoch is the instant every suite's fake clock starts at.
var Epoch = time.Date(2026, time.March, 18, 10, 30, 0, 0, time.UTC)

type Suite struct {
	suite.Suite
	context.Context

	Cancel context.CancelFunc
	DB     *gorm.DB
	Clock  *clock.Fake
	Logger *mylog.Logger
}

func (s *Suite) SetupTest() {
	projectRoot, err := s.findProjectRoot()
	s.Require().NoError(err, "Failed to find project root")
	if envFile := filepath.Join(projectRoot, ".env.test"); fileExists(envFile) {
		s.Require().NoError(godotenv.Load(envFile))
	}

	s.Context, s.Cancel = context.WithCancel(context.TODO())
	s.Clock = clock.NewFake(Epoch)
	s.Logger = mylog.Discard()
	if os.Getenv("TEST_VERBOSE") != "" {
		s.Logger = mylog.NewLogger("debug", "default")
	}

	s.DB, err = OpenMemoryDB(s.Clock)
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(s.Context, s.DB))
}

func (s *Suite) TearDownTest() {
	s.Cancel()
	s.Require().NoError(db.CloseDB(s.DB))
}

// OpenMemoryDB opens a private in-memory SQLite database whose timestamps
// come from c.
func OpenMemoryDB(c clock.Clock) (*gorm.DB, error) {
	return db.OpenDB(
		fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString()),
		db.WithNowFunc(c.Now),
		db.WithSilentLogger(),
	)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// findProjectRoot searches for go.mod file starting from the current file location
func (s *Suite) findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("go.mod not found in any parent directory")
}
