package reshare_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/envelope"
	"github.com/bitshard/threshold/pkg/party"
	"github.com/bitshard/threshold/pkg/polynomial"
	"github.com/bitshard/threshold/pkg/wallet"
	"github.com/bitshard/threshold/protocols/dkg"
	"github.com/bitshard/threshold/protocols/reshare"
)

func runDKG(t *testing.T, ids party.IDSlice, threshold int, transportSecrets map[party.ID]*curve.Scalar, transportPublic map[party.ID]*curve.Point) map[party.ID]*wallet.Config {
	t.Helper()
	setups := make(map[party.ID]wallet.PartySetup, len(ids))
	for _, id := range ids {
		setups[id] = wallet.PartySetup{
			ID: id, AllParties: ids, Threshold: threshold,
			TransportSecret: transportSecrets[id], TransportPublic: transportPublic,
		}
	}
	sessionID := []byte("reshare-test-dkg")

	out1 := make(map[party.ID]*dkg.Round1Output, len(ids))
	st1 := make(map[party.ID]*dkg.Round1State, len(ids))
	for _, id := range ids {
		o, s, err := dkg.Round1(setups[id], sessionID, nil)
		require.NoError(t, err)
		out1[id], st1[id] = o, s
	}
	st2 := make(map[party.ID]*dkg.Round2State, len(ids))
	sent := make(map[party.ID]map[party.ID]*envelope.Envelope, len(ids))
	for _, id := range ids {
		incoming := make(map[party.ID]*dkg.Round1Output)
		for _, other := range ids {
			if other != id {
				incoming[other] = out1[other]
			}
		}
		envs, s, err := dkg.Round2(st1[id], sessionID, incoming, nil)
		require.NoError(t, err)
		sent[id], st2[id] = envs, s
	}
	configs := make(map[party.ID]*wallet.Config, len(ids))
	for _, id := range ids {
		incoming := make(map[party.ID]*envelope.Envelope)
		for _, other := range ids {
			if other != id {
				incoming[other] = sent[other][id]
			}
		}
		cfg, err := dkg.Finalize(st2[id], incoming)
		require.NoError(t, err)
		configs[id] = cfg
	}
	return configs
}

func TestReshareProducesEquivalentGroupUnderNewThreshold(t *testing.T) {
	oldIDs := party.IDSlice{"1", "2", "3"}
	newIDs := party.IDSlice{"1", "2", "3", "4"}

	transportSecrets := make(map[party.ID]*curve.Scalar, len(newIDs))
	transportPublic := make(map[party.ID]*curve.Point, len(newIDs))
	for _, id := range newIDs {
		s, err := curve.Random(nil)
		require.NoError(t, err)
		transportSecrets[id] = s
		transportPublic[id] = s.ActOnBase()
	}

	oldConfigs := runDKG(t, oldIDs, 2, transportSecrets, transportPublic)

	oldQuorum := party.IDSlice{"1", "2"}
	newThreshold := 3

	contributions := make(map[party.ID]*reshare.Round1Output, len(oldQuorum))
	states := make(map[party.ID]*reshare.Round1State, len(oldQuorum))
	for _, id := range oldQuorum {
		out, st, err := reshare.Round1(oldConfigs[id], newIDs, newThreshold, nil, nil)
		require.NoError(t, err)
		contributions[id], states[id] = out, st
	}

	sent := make(map[party.ID]map[party.ID]*envelope.Envelope, len(oldQuorum))
	for _, id := range oldQuorum {
		envs, err := reshare.Round2(states[id], transportSecrets[id], transportPublic, nil)
		require.NoError(t, err)
		sent[id] = envs
	}

	newConfigs := make(map[party.ID]*wallet.Config, len(newIDs))
	for _, j := range newIDs {
		incoming := make(map[party.ID]*envelope.Envelope, len(oldQuorum))
		for _, id := range oldQuorum {
			incoming[id] = sent[id][j]
		}
		cfg, err := reshare.Finalize(
			j, oldQuorum, oldConfigs["1"].Metadata,
			contributions, incoming,
			transportSecrets[j], transportPublic,
			newIDs, newThreshold, nil,
			2, oldConfigs["1"].GroupKey,
		)
		require.NoError(t, err)
		newConfigs[j] = cfg
	}

	subset := newIDs[:3]
	weights, err := polynomial.Lagrange(subset)
	require.NoError(t, err)
	recovered := curve.NewScalar()
	for _, id := range subset {
		recovered = recovered.Add(weights[id].Mul(newConfigs[id].Share))
	}
	recoveredPoint, _ := recovered.ActOnBase().EvenY()
	require.Equal(t, oldConfigs["1"].GroupKey, recoveredPoint.XOnly())

	for _, id := range newIDs {
		require.True(t, newConfigs[id].Share.ActOnBase().Equal(newConfigs[id].VerificationShares[id]))
	}
}

func TestReshareAcceptsOldQuorumLargerThanThreshold(t *testing.T) {
	oldIDs := party.IDSlice{"1", "2", "3"}
	newIDs := party.IDSlice{"1", "2", "3", "4"}

	transportSecrets := make(map[party.ID]*curve.Scalar, len(newIDs))
	transportPublic := make(map[party.ID]*curve.Point, len(newIDs))
	for _, id := range newIDs {
		s, err := curve.Random(nil)
		require.NoError(t, err)
		transportSecrets[id] = s
		transportPublic[id] = s.ActOnBase()
	}

	oldConfigs := runDKG(t, oldIDs, 2, transportSecrets, transportPublic)

	oldQuorum := party.IDSlice{"1", "2", "3"}
	newThreshold := 3

	contributions := make(map[party.ID]*reshare.Round1Output, len(oldQuorum))
	states := make(map[party.ID]*reshare.Round1State, len(oldQuorum))
	for _, id := range oldQuorum {
		out, st, err := reshare.Round1(oldConfigs[id], newIDs, newThreshold, nil, nil)
		require.NoError(t, err)
		contributions[id], states[id] = out, st
	}

	sent := make(map[party.ID]map[party.ID]*envelope.Envelope, len(oldQuorum))
	for _, id := range oldQuorum {
		envs, err := reshare.Round2(states[id], transportSecrets[id], transportPublic, nil)
		require.NoError(t, err)
		sent[id] = envs
	}

	j := party.ID("1")
	incoming := make(map[party.ID]*envelope.Envelope, len(oldQuorum))
	for _, id := range oldQuorum {
		incoming[id] = sent[id][j]
	}
	cfg, err := reshare.Finalize(
		j, oldQuorum, oldConfigs["1"].Metadata,
		contributions, incoming,
		transportSecrets[j], transportPublic,
		newIDs, newThreshold, nil,
		2, oldConfigs["1"].GroupKey,
	)
	require.NoError(t, err)
	require.True(t, cfg.Share.ActOnBase().Equal(cfg.VerificationShares[j]))
}

// TestReshareIntoHierarchicalTargetRanks exercises the rank-aware path of
// Round2/Finalize: new parties are assigned non-zero ranks, so each must
// receive a derivative-order sub-share (g_i^(r')(x_j')) rather than a
// plain evaluation.
func TestReshareIntoHierarchicalTargetRanks(t *testing.T) {
	oldIDs := party.IDSlice{"1", "2", "3"}
	newIDs := party.IDSlice{"1", "2", "3", "4"}
	newRanks := party.RankSet{"1": 0, "2": 1, "3": 1, "4": 2}

	transportSecrets := make(map[party.ID]*curve.Scalar, len(newIDs))
	transportPublic := make(map[party.ID]*curve.Point, len(newIDs))
	for _, id := range newIDs {
		s, err := curve.Random(nil)
		require.NoError(t, err)
		transportSecrets[id] = s
		transportPublic[id] = s.ActOnBase()
	}

	oldConfigs := runDKG(t, oldIDs, 2, transportSecrets, transportPublic)

	oldQuorum := party.IDSlice{"1", "2"}
	newThreshold := 3

	contributions := make(map[party.ID]*reshare.Round1Output, len(oldQuorum))
	states := make(map[party.ID]*reshare.Round1State, len(oldQuorum))
	for _, id := range oldQuorum {
		out, st, err := reshare.Round1(oldConfigs[id], newIDs, newThreshold, newRanks, nil)
		require.NoError(t, err)
		contributions[id], states[id] = out, st
	}

	sent := make(map[party.ID]map[party.ID]*envelope.Envelope, len(oldQuorum))
	for _, id := range oldQuorum {
		envs, err := reshare.Round2(states[id], transportSecrets[id], transportPublic, nil)
		require.NoError(t, err)
		sent[id] = envs
	}

	newConfigs := make(map[party.ID]*wallet.Config, len(newIDs))
	for _, j := range newIDs {
		incoming := make(map[party.ID]*envelope.Envelope, len(oldQuorum))
		for _, id := range oldQuorum {
			incoming[id] = sent[id][j]
		}
		cfg, err := reshare.Finalize(
			j, oldQuorum, oldConfigs["1"].Metadata,
			contributions, incoming,
			transportSecrets[j], transportPublic,
			newIDs, newThreshold, newRanks,
			2, oldConfigs["1"].GroupKey,
		)
		require.NoError(t, err)
		newConfigs[j] = cfg
	}

	admissible := party.IDSlice{"1", "2", "3"}
	nodes := make([]polynomial.Node, len(admissible))
	for i, id := range admissible {
		nodes[i] = polynomial.Node{ID: id, X: curve.NewScalar().SetNat(id.Nat()), Rank: newRanks.RankOf(id)}
	}
	weights, err := polynomial.BirkhoffCoefficients(nodes)
	require.NoError(t, err)
	recovered := curve.NewScalar()
	for _, id := range admissible {
		recovered = recovered.Add(weights[id].Mul(newConfigs[id].Share))
	}
	recoveredPoint, _ := recovered.ActOnBase().EvenY()
	require.Equal(t, oldConfigs["1"].GroupKey, recoveredPoint.XOnly())

	for _, id := range newIDs {
		require.True(t, newConfigs[id].Share.ActOnBase().Equal(newConfigs[id].VerificationShares[id]))
	}
}
