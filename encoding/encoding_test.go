package encoding

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/tenet-verify/tenet/engine"
)

func sampleReport(rule, method string, verdict uint8) *engine.Report {
	return &engine.Report{
		Contract: "ERC20",
		Results: []engine.Result{
			{
				Rule:    rule,
				Kind:    "rule",
				Method:  method,
				Verdict: engine.Verdict(verdict),
				Message: "assertion failed",
				Cex: &engine.Counterexample{
					Bindings: []engine.Binding{{Name: "to", Value: "0x0000000000000000000000000000000000100000"}},
					Trace:    []string{"call transfer(address,uint256)"},
				},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	properties.Property("deserialize(serialize(report)) == report", prop.ForAll(
		func(rule, method string, verdict uint8) bool {
			in := sampleReport(rule, method, verdict%5)
			var buff bytes.Buffer
			if err := Serialize(&buff, in); err != nil {
				return false
			}
			out, err := Deserialize(&buff)
			if err != nil {
				return false
			}
			r := out.Results[0]
			return out.Contract == in.Contract &&
				r.Rule == rule && r.Method == method &&
				r.Verdict == engine.Verdict(verdict%5) &&
				r.Cex != nil && len(r.Cex.Bindings) == 1
		},
		gen.AnyString(), gen.AnyString(), gen.UInt8(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestVersionMismatch(t *testing.T) {
	assert := require.New(t)

	var buff bytes.Buffer
	assert.NoError(Serialize(&buff, sampleReport("r", "", 0)))

	// corrupt the version prefix: a single-byte CBOR uint heads the
	// stream for any small version number
	raw := buff.Bytes()
	raw[0] = 0x17 // uint 23
	_, err := Deserialize(bytes.NewReader(raw))
	assert.ErrorIs(err, errInvalidVersion)
}

func TestJSONRoundTrip(t *testing.T) {
	assert := require.New(t)

	in := sampleReport("transferSpendsSender", "transfer(address,uint256)", 1)
	var buff bytes.Buffer
	assert.NoError(WriteJSON(&buff, in))
	assert.Contains(buff.String(), `"Violated"`)

	out, err := ReadJSON(&buff)
	assert.NoError(err)
	assert.Equal(in.Results[0].Rule, out.Results[0].Rule)
	assert.Equal(engine.Violated, out.Results[0].Verdict)
}
