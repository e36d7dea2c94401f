package insights_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
)

func TestDecodePayload_PicksVariantByCategory(t *testing.T) {
	ds := insights.Synthesize(exams.ExtractTemplate("Blood Test"), exams.RiskNormal)
	require.Len(t, ds, 3)

	for _, d := range ds {
		raw, err := insights.EncodePayload(d.Data)
		require.NoError(t, err)

		p, err := insights.DecodePayload(d.Category, raw)
		require.NoError(t, err)
		assert.Equal(t, d.Category, p.Category())
	}

	raw, err := insights.EncodePayload(ds[2].Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"blood_glucose":{"value":95,"unit":"mg/dL","status":"normal","reference":"70-99 mg/dL"}}`, string(raw))
}

func TestDecodePayload_Errors(t *testing.T) {
	_, err := insights.DecodePayload("Sleep", []byte(`{}`))
	assert.Error(t, err)

	_, err = insights.DecodePayload(insights.CategoryNutrition, []byte(`not json`))
	assert.Error(t, err)

	p, err := insights.DecodePayload(insights.CategoryMetabolism, nil)
	require.NoError(t, err)
	assert.Equal(t, insights.MetabolismData{}, p)
}

func TestEncodePayload_Nil(t *testing.T) {
	raw, err := insights.EncodePayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))
}

func TestInsight_JSONRoundTripKeepsVariant(t *testing.T) {
	exam := &exams.Exam{ID: "e1", UserID: "7"}
	ds := insights.Synthesize(exams.ExtractTemplate("Cardiac"), exams.RiskAttention)
	require.Len(t, ds, 1)
	in := ds[0].FromExam("i1", exam, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var back insights.Insight
	require.NoError(t, json.Unmarshal(raw, &back))
	cv, ok := back.Data.(insights.CardiovascularData)
	require.True(t, ok)
	require.NotNil(t, cv.HeartRate)
	assert.Equal(t, "Atenção Cardiovascular", back.Title)
	assert.Equal(t, exams.ExamID("e1"), *back.SourceExamID)
}
