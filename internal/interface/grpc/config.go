package grpcservice

import (
	"fmt"
	"net"
)

type Config struct {
	Port uint32
	// The api is served in clear text over h2c.
	NoTLS bool
}

func (c Config) Validate() error {
	if !c.NoTLS {
		return fmt.Errorf("tls is not supported, the api must run behind a tls terminating proxy")
	}

	lis, err := net.Listen("tcp", c.address())
	if err != nil {
		return fmt.Errorf("invalid port: %s", err)
	}
	// nolint:all
	defer lis.Close()

	return nil
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.Port)
}
