package entity

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// AssetType is the on-chain asset kind enum. Values outside the known
// set are preserved as-is so that new contract versions degrade
// gracefully instead of failing the decode.
type AssetType uint64

const (
	AssetTypeERC20   AssetType = 0
	AssetTypeERC721  AssetType = 1
	AssetTypeERC1155 AssetType = 2
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeERC20:
		return "erc20"
	case AssetTypeERC721:
		return "erc721"
	case AssetTypeERC1155:
		return "erc1155"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(t))
	}
}

func (t AssetType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", t.String())), nil
}

func (t *AssetType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAssetType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseAssetType is the inverse of AssetType.String, including the
// unknown(N) form.
func ParseAssetType(s string) (AssetType, error) {
	switch s {
	case "erc20":
		return AssetTypeERC20, nil
	case "erc721":
		return AssetTypeERC721, nil
	case "erc1155":
		return AssetTypeERC1155, nil
	default:
		var n uint64
		if _, err := fmt.Sscanf(s, "unknown(%d)", &n); err != nil {
			return 0, fmt.Errorf("invalid asset type %q", s)
		}
		return AssetType(n), nil
	}
}

// AssetRole identifies which of the three inscription asset lists an
// asset belongs to.
type AssetRole string

const (
	AssetRoleDebt       AssetRole = "debt"
	AssetRoleInterest   AssetRole = "interest"
	AssetRoleCollateral AssetRole = "collateral"
)

// Asset is one entry of an inscription's debt, interest or collateral
// list. Value and TokenId are full u256 words regardless of asset type.
type Asset struct {
	Address string       `json:"address"`
	Type    AssetType    `json:"type"`
	Value   *uint256.Int `json:"value"`
	TokenId *uint256.Int `json:"token_id"`
}
