package container

import (
	"fmt"
	"testing"

	"github.com/delegate-rewards/referral-payout/internal/config"
	"github.com/delegate-rewards/referral-payout/testutil"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
)

// ImageConfig contains all images and their respective tags
// needed for running e2e tests.
type ImageConfig struct {
	MongoRepository string
	MongoVersion    string
}

const (
	dockerMongoRepository = "mongo"
	// it should be in sync with mongo version used in production
	dockerMongoVersionTag = "7.0.5"

	mongoUsername = "user"
	mongoPassword = "password"
	mongoDatabase = "payout-e2e"
)

// NewImageConfig returns ImageConfig needed for running e2e test.
func NewImageConfig() ImageConfig {
	return ImageConfig{
		MongoRepository: dockerMongoRepository,
		MongoVersion:    dockerMongoVersionTag,
	}
}

// StartMongo runs a throwaway mongo container, purged when the test ends
func StartMongo(t *testing.T, images ImageConfig) *config.DbConfig {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	suffix, err := testutil.RandomAlphaNum(5)
	require.NoError(t, err)

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Name:       "payout-e2e-mongo-" + suffix,
		Repository: images.MongoRepository,
		Tag:        images.MongoVersion,
		Env: []string{
			"MONGO_INITDB_ROOT_USERNAME=" + mongoUsername,
			"MONGO_INITDB_ROOT_PASSWORD=" + mongoPassword,
			"MONGO_INITDB_DATABASE=" + mongoDatabase,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("failed to purge mongo container: %v", err)
		}
	})

	return &config.DbConfig{
		Username: mongoUsername,
		Password: mongoPassword,
		DbName:   mongoDatabase,
		Address:  fmt.Sprintf("mongodb://localhost:%s/", resource.GetPort("27017/tcp")),
	}
}
