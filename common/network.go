package common

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkSepolia Network = "sepolia"
)

var supportedNetworks = map[Network]struct{}{
	NetworkMainnet: {},
	NetworkSepolia: {},
}

// chainIds maps a network to its StarkNet chain id short string.
var chainIds = map[Network]string{
	NetworkMainnet: "SN_MAIN",
	NetworkSepolia: "SN_SEPOLIA",
}

func (n Network) IsSupported() bool {
	_, ok := supportedNetworks[n]
	return ok
}

// ChainId returns the StarkNet chain id short string for the network.
func (n Network) ChainId() string {
	return chainIds[n]
}

func (n Network) String() string {
	return string(n)
}
