package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	nickname      string
	bindAddr      string
	advertiseAddr string
	homeAddr      string
	libraryDir    string
	cacheDir      string
	portRangeLo   int
	portRangeHi   int

	signingSecret []byte
	env           string
}

var (
	config Config
)

func init() {
	_ = godotenv.Load(".env")

	config = Config{
		nickname:      nicknameFromEnv(),
		bindAddr:      os.Getenv("ATTUNE_BIND"),
		advertiseAddr: os.Getenv("ATTUNE_ADVERTISE"),
		homeAddr:      os.Getenv("ATTUNE_HOME"),
		libraryDir:    os.Getenv("ATTUNE_LIBRARY"),
		cacheDir:      cacheDirFromEnv(),
		signingSecret: signingSecretFromEnv(),
		env:           os.Getenv("ENV"),
	}
	if config.env == "" {
		config.env = "LOCAL"
	}
	config.portRangeLo, config.portRangeHi = portRangeFromEnv()
}

// nicknameFromEnv resolves the fallback chain: explicit setting, then the
// OS login name, then a generic default.
func nicknameFromEnv() string {
	if name := os.Getenv("ATTUNE_NICKNAME"); name != "" {
		return name
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if name := os.Getenv("USERNAME"); name != "" {
		return name
	}
	return "listener"
}

func cacheDirFromEnv() string {
	if dir := os.Getenv("ATTUNE_CACHE"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "attune-cache")
	}
	return filepath.Join(base, "attune")
}

func signingSecretFromEnv() []byte {
	encoded := os.Getenv("SIGNING_SECRET")
	if encoded == "" {
		return nil
	}
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		panic("can't decode signing secret")
	}
	return secret
}

func portRangeFromEnv() (lo int, hi int) {
	lo, hi = 52000, 52016
	spec := os.Getenv("ATTUNE_PORT_RANGE")
	if spec == "" {
		return
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		fmt.Fprintf(os.Stderr, "bad port range %q (want lo-hi)\n", spec)
		return
	}
	parsedLo, err1 := strconv.Atoi(parts[0])
	parsedHi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || parsedLo > parsedHi {
		fmt.Fprintf(os.Stderr, "bad port range %q (want lo-hi)\n", spec)
		return
	}
	return parsedLo, parsedHi
}

func GetNickname() string {
	return config.nickname
}

func GetBindAddr() string {
	return config.bindAddr
}

func GetAdvertiseAddr() string {
	return config.advertiseAddr
}

func GetHomeAddr() string {
	return config.homeAddr
}

func GetLibraryDir() string {
	return config.libraryDir
}

func GetCacheDir() string {
	return config.cacheDir
}

func GetPortRange() (int, int) {
	return config.portRangeLo, config.portRangeHi
}

func GetSigningSecret() []byte {
	return config.signingSecret
}

func GetIsProd() bool {
	return strings.ToUpper(config.env) != "LOCAL"
}
