package ethtypes

import (
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"
)

func formatBigInt(val big.Int) []byte {
	if val.Int == nil {
		return []byte{}
	}
	return val.Int.Bytes()
}

func formatEthAddr(addr *EthAddress) []byte {
	if addr == nil {
		return []byte{}
	}
	return addr[:]
}

func parseBigInt(v interface{}) (big.Int, error) {
	data, ok := v.([]byte)
	if !ok {
		return big.Zero(), xerrors.Errorf("cannot parse interface to big.Int: input is not a byte array")
	}
	if len(data) == 0 {
		return big.Zero(), nil
	}
	if len(data) > 32 {
		return big.Zero(), xerrors.Errorf("cannot parse interface to big.Int: integer wider than 256 bits")
	}
	return big.PositiveFromUnsignedBytes(data), nil
}

func parseEthAddr(v interface{}) (*EthAddress, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, xerrors.Errorf("cannot parse EthAddress: value is not a byte slice")
	}
	if len(b) == 0 {
		return nil, nil
	}
	addr, err := CastEthAddress(b)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func padLeadingZeros(data []byte, length int) []byte {
	if len(data) >= length {
		return data
	}
	zeros := make([]byte, length-len(data))
	return append(zeros, data...)
}
