package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ark-network/raffle/internal/core/application"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/ark-network/raffle/internal/infrastructure/db"
	watermilldb "github.com/ark-network/raffle/internal/infrastructure/db/watermill"
	localprovider "github.com/ark-network/raffle/internal/infrastructure/randomness/local"
	webhookprovider "github.com/ark-network/raffle/internal/infrastructure/randomness/webhook"
	timescheduler "github.com/ark-network/raffle/internal/infrastructure/scheduler/gocron"
	badgerstatestore "github.com/ark-network/raffle/internal/infrastructure/state-store/badger"
	inmemorystatestore "github.com/ark-network/raffle/internal/infrastructure/state-store/inmemory"
	redisstatestore "github.com/ark-network/raffle/internal/infrastructure/state-store/redis"
	ledgerwallet "github.com/ark-network/raffle/internal/infrastructure/wallet/ledger"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedStateStores = supportedType{
		"inmemory": {},
		"badger":   {},
		"redis":    {},
	}
	supportedEventDbs = supportedType{
		"watermill": {},
	}
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
	supportedRandomnessProviders = supportedType{
		"local":   {},
		"webhook": {},
	}
	supportedWallets = supportedType{
		"ledger": {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	NoTLS    bool
	LogLevel int

	EntryFee         uint64
	Interval         int64
	CallbackGasLimit uint32
	Confirmations    uint16
	UpkeepInterval   int64

	StateStoreType         string
	RedisUrl               string
	RedisNumOfRetries      int
	EventDbType            string
	DbType                 string
	DbDir                  string
	SchedulerType          string
	RandomnessProviderType string
	RandomnessProviderId   string
	TrustedFulfillerId     string
	FulfillerToken         string
	WebhookUrl             string
	BlockTime              int64
	WalletType             string

	store      ports.StateStore
	repo       ports.RepoManager
	scheduler  ports.SchedulerService
	randomness ports.RandomnessProvider
	wallet     ports.WalletService
	svc        application.Service
}

func (c *Config) String() string {
	clone := *c
	if len(clone.FulfillerToken) > 0 {
		clone.FulfillerToken = "••••••"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir                = "DATADIR"
	Port                   = "PORT"
	NoTLS                  = "NO_TLS"
	LogLevel               = "LOG_LEVEL"
	EntryFee               = "ENTRY_FEE"
	Interval               = "INTERVAL"
	CallbackGasLimit       = "CALLBACK_GAS_LIMIT"
	Confirmations          = "CONFIRMATIONS"
	UpkeepInterval         = "UPKEEP_INTERVAL"
	StateStoreType         = "STATE_STORE_TYPE"
	RedisUrl               = "REDIS_URL"
	RedisNumOfRetries      = "REDIS_NUM_OF_RETRIES"
	EventDbType            = "EVENT_DB_TYPE"
	DbType                 = "DB_TYPE"
	SchedulerType          = "SCHEDULER_TYPE"
	RandomnessProviderType = "RANDOMNESS_PROVIDER_TYPE"
	RandomnessProviderId   = "RANDOMNESS_PROVIDER_ID"
	TrustedFulfillerId     = "TRUSTED_FULFILLER_ID"
	FulfillerToken         = "FULFILLER_TOKEN"
	WebhookUrl             = "WEBHOOK_URL"
	BlockTime              = "BLOCK_TIME"
	WalletType             = "WALLET_TYPE"

	defaultDatadir                = appDataDir("raffled")
	DefaultPort                   = 7070
	defaultNoTLS                  = true
	defaultLogLevel               = 4
	// 0.01 with 18 decimals. Balances are uint64 base units, so at this scale a
	// round holds at most ~18.44 whole units (about 1844 entries) before
	// entries are rejected for overflow.
	defaultEntryFee               = uint64(10_000_000_000_000_000)
	defaultInterval               = 30
	defaultCallbackGasLimit       = 500000
	defaultConfirmations          = 3
	defaultUpkeepInterval         = 5
	defaultStateStoreType         = "badger"
	defaultRedisNumOfRetries      = 10
	defaultEventDbType            = "watermill"
	defaultDbType                 = "sqlite"
	defaultSchedulerType          = "gocron"
	defaultRandomnessProviderType = "local"
	defaultRandomnessProviderId   = "local-vrf"
	defaultBlockTime              = 12
	defaultWalletType             = "ledger"
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("RAFFLE")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(NoTLS, defaultNoTLS)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(EntryFee, defaultEntryFee)
	viper.SetDefault(Interval, defaultInterval)
	viper.SetDefault(CallbackGasLimit, defaultCallbackGasLimit)
	viper.SetDefault(Confirmations, defaultConfirmations)
	viper.SetDefault(UpkeepInterval, defaultUpkeepInterval)
	viper.SetDefault(StateStoreType, defaultStateStoreType)
	viper.SetDefault(RedisNumOfRetries, defaultRedisNumOfRetries)
	viper.SetDefault(EventDbType, defaultEventDbType)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(RandomnessProviderType, defaultRandomnessProviderType)
	viper.SetDefault(RandomnessProviderId, defaultRandomnessProviderId)
	viper.SetDefault(BlockTime, defaultBlockTime)
	viper.SetDefault(WalletType, defaultWalletType)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	return &Config{
		Datadir:                viper.GetString(Datadir),
		Port:                   viper.GetUint32(Port),
		NoTLS:                  viper.GetBool(NoTLS),
		LogLevel:               viper.GetInt(LogLevel),
		EntryFee:               viper.GetUint64(EntryFee),
		Interval:               viper.GetInt64(Interval),
		CallbackGasLimit:       viper.GetUint32(CallbackGasLimit),
		Confirmations:          viper.GetUint16(Confirmations),
		UpkeepInterval:         viper.GetInt64(UpkeepInterval),
		StateStoreType:         viper.GetString(StateStoreType),
		RedisUrl:               viper.GetString(RedisUrl),
		RedisNumOfRetries:      viper.GetInt(RedisNumOfRetries),
		EventDbType:            viper.GetString(EventDbType),
		DbType:                 viper.GetString(DbType),
		DbDir:                  filepath.Join(viper.GetString(Datadir), "db"),
		SchedulerType:          viper.GetString(SchedulerType),
		RandomnessProviderType: viper.GetString(RandomnessProviderType),
		RandomnessProviderId:   viper.GetString(RandomnessProviderId),
		TrustedFulfillerId:     viper.GetString(TrustedFulfillerId),
		FulfillerToken:         viper.GetString(FulfillerToken),
		WebhookUrl:             viper.GetString(WebhookUrl),
		BlockTime:              viper.GetInt64(BlockTime),
		WalletType:             viper.GetString(WalletType),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedStateStores.supports(c.StateStoreType) {
		return fmt.Errorf("state store type not supported, please select one of: %s", supportedStateStores)
	}
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf("event db type not supported, please select one of: %s", supportedEventDbs)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if !supportedRandomnessProviders.supports(c.RandomnessProviderType) {
		return fmt.Errorf(
			"randomness provider type not supported, please select one of: %s",
			supportedRandomnessProviders,
		)
	}
	if !supportedWallets.supports(c.WalletType) {
		return fmt.Errorf("wallet type not supported, please select one of: %s", supportedWallets)
	}
	if c.EntryFee == 0 {
		return fmt.Errorf("entry fee must be greater than 0")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("invalid interval, must be greater than 0")
	}
	if c.UpkeepInterval < 0 {
		return fmt.Errorf("invalid upkeep interval, must not be negative")
	}
	if c.StateStoreType == "redis" && len(c.RedisUrl) <= 0 {
		return fmt.Errorf("missing redis url")
	}
	if c.RandomnessProviderType == "webhook" {
		if len(c.WebhookUrl) <= 0 {
			return fmt.Errorf("missing webhook url")
		}
		// Fulfillments reach the raffle only through the api in this case.
		if len(c.FulfillerToken) <= 0 {
			return fmt.Errorf("missing fulfiller token")
		}
	}

	if err := c.stateStore(); err != nil {
		return err
	}
	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.randomnessProvider(); err != nil {
		return err
	}
	if err := c.walletService(); err != nil {
		return err
	}
	return c.appService()
}

func (c *Config) AppService() application.Service {
	return c.svc
}

// TrustedFulfiller returns the identity bound to the fulfiller token.
func (c *Config) TrustedFulfiller() string {
	if len(c.TrustedFulfillerId) > 0 {
		return c.TrustedFulfillerId
	}
	return c.RandomnessProviderId
}

func (c *Config) stateStore() error {
	var store ports.StateStore
	var err error
	switch c.StateStoreType {
	case "inmemory":
		store = inmemorystatestore.NewStateStore()
	case "badger":
		store, err = badgerstatestore.NewStateStore(c.DbDir, log.New())
	case "redis":
		var opts *redis.Options
		opts, err = redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid redis url: %s", err)
		}
		store = redisstatestore.NewStateStore(redis.NewClient(opts), c.RedisNumOfRetries)
	default:
		err = fmt.Errorf("unknown state store type")
	}
	if err != nil {
		return err
	}

	c.store = store
	return nil
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.EventDbType {
	case "watermill":
		eventStoreConfig = []interface{}{
			watermilldb.NewLogger(log.WithField("module", "watermill")),
		}
	default:
		return fmt.Errorf("unknown event db type")
	}

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

func (c *Config) randomnessProvider() error {
	if c.scheduler == nil {
		return fmt.Errorf("scheduler not set")
	}

	var svc ports.RandomnessProvider
	var err error
	switch c.RandomnessProviderType {
	case "local":
		svc, err = localprovider.NewProvider(c.RandomnessProviderId, c.BlockTime, c.scheduler)
	case "webhook":
		svc, err = webhookprovider.NewProvider(c.RandomnessProviderId, c.WebhookUrl)
	default:
		err = fmt.Errorf("unknown randomness provider type")
	}
	if err != nil {
		return err
	}

	c.randomness = svc
	return nil
}

func (c *Config) walletService() error {
	var svc ports.WalletService
	var err error
	switch c.WalletType {
	case "ledger":
		svc, err = ledgerwallet.NewWallet(c.DbDir, log.New())
	default:
		err = fmt.Errorf("unknown wallet type")
	}
	if err != nil {
		return err
	}

	c.wallet = svc
	return nil
}

func (c *Config) appService() error {
	svc, err := application.NewService(
		application.Config{
			EntryFee:         c.EntryFee,
			Interval:         c.Interval,
			CallbackGasLimit: c.CallbackGasLimit,
			Confirmations:    c.Confirmations,
			TrustedFulfiller: c.TrustedFulfiller(),
			UpkeepInterval:   c.UpkeepInterval,
		},
		c.store, c.repo, c.randomness, c.wallet, c.scheduler,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+strings.ToLower(appName))
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
