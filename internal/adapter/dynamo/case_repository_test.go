package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/caseflow/internal/domain"
)

// fakeAPI answers each call from a function set by the test.
type fakeAPI struct {
	getItem  func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	update   func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	query    func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	scan     func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	transact func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getItem(in)
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return f.update(in)
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return f.query(in)
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return f.scan(in)
}

func (f *fakeAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return f.transact(in)
}

var now = time.Date(2026, 10, 18, 9, 30, 0, 123000000, time.UTC)

func sampleCase() *domain.Case {
	addr := "12 Abay Avenue, Almaty"
	return &domain.Case{
		ID:                "case-1",
		Number:            "SG_20261018_004",
		ClientID:          "client-1",
		ProcedureCategory: "implant",
		GuideType:         "tooth_supported",
		ServiceTier:       domain.ServiceTierFullSolution,
		SelectedTeeth:     []int{36, 37},
		DeliveryMethod:    domain.DeliveryMethodDelivery,
		DeliveryAddress:   &addr,
		Attachments: []domain.Attachment{
			{ID: "att-1", FileName: "scan.stl", ContentType: "model/stl", SizeBytes: 2048, StorageKey: "k", CreatedAt: now},
		},
		Status:    domain.StatusQuoteSent,
		Version:   6,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func itemOf(t *testing.T, c *domain.Case) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(toCaseItem(c))
	require.NoError(t, err)
	return av
}

func TestCaseItemMapping(t *testing.T) {
	c := sampleCase()

	var it caseItem
	require.NoError(t, attributevalue.UnmarshalMap(itemOf(t, c), &it))
	assert.Equal(t, c, fromCaseItem(it))

	from := domain.StatusSubmitted
	notes := "ok"
	e := &domain.StatusHistoryEntry{CaseID: "case-1", Sequence: 2, FromStatus: &from, ToStatus: domain.StatusCancelled,
		ChangedBy: domain.RoleClient, ActorID: "client-1", Kind: domain.EntryKindTransition, Notes: &notes, CreatedAt: now}
	got := fromHistoryItem(toHistoryItem(e))
	e.ID = 2
	assert.Equal(t, e, got)
}

func TestFindByID(t *testing.T) {
	api := &fakeAPI{getItem: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		assert.True(t, aws.ToBool(in.ConsistentRead))
		switch in.Key["id"].(*types.AttributeValueMemberS).Value {
		case "case-1":
			return &dynamodb.GetItemOutput{Item: itemOf(t, sampleCase())}, nil
		case "counter#SG_20261018_":
			return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
				"id":  &types.AttributeValueMemberS{Value: "counter#SG_20261018_"},
				"seq": &types.AttributeValueMemberN{Value: "3"},
			}}, nil
		}
		return &dynamodb.GetItemOutput{}, nil
	}}
	repo := NewCaseRepository(api, "cases", "history")

	c, err := repo.FindByID(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQuoteSent, c.Status)

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)

	_, err = repo.FindByID(context.Background(), "counter#SG_20261018_")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestApplyTransition(t *testing.T) {
	current := sampleCase()
	updated := current.Clone()
	entry := updated.Advance(domain.StatusQuoteAccepted, domain.Actor{ID: "client-1", Role: domain.RoleClient}, nil, domain.EntryKindTransition, now)

	t.Run("writes case and history together", func(t *testing.T) {
		var captured *dynamodb.TransactWriteItemsInput
		api := &fakeAPI{transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			captured = in
			return &dynamodb.TransactWriteItemsOutput{}, nil
		}}
		repo := NewCaseRepository(api, "cases", "history")

		require.NoError(t, repo.ApplyTransition(context.Background(), updated, current.Version, entry))
		require.Len(t, captured.TransactItems, 2)

		upd := captured.TransactItems[0].Update
		require.NotNil(t, upd)
		assert.Equal(t, "cases", aws.ToString(upd.TableName))
		assert.Equal(t, "attribute_exists(#id) AND #version = :expected", aws.ToString(upd.ConditionExpression))
		assert.Equal(t, "6", upd.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value)
		assert.Equal(t, "7", upd.ExpressionAttributeValues[":version"].(*types.AttributeValueMemberN).Value)

		put := captured.TransactItems[1].Put
		require.NotNil(t, put)
		assert.Equal(t, "history", aws.ToString(put.TableName))
		assert.Equal(t, int64(7), entry.ID)
	})

	cancelled := &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("None")},
		},
	}

	t.Run("stale version", func(t *testing.T) {
		api := &fakeAPI{
			transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
				return nil, cancelled
			},
			getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
				return &dynamodb.GetItemOutput{Item: itemOf(t, sampleCase())}, nil
			},
		}
		repo := NewCaseRepository(api, "cases", "history")
		err := repo.ApplyTransition(context.Background(), updated, current.Version, entry)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	t.Run("case deleted", func(t *testing.T) {
		api := &fakeAPI{
			transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
				return nil, cancelled
			},
			getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
				return &dynamodb.GetItemOutput{}, nil
			},
		}
		repo := NewCaseRepository(api, "cases", "history")
		err := repo.ApplyTransition(context.Background(), updated, current.Version, entry)
		assert.ErrorIs(t, err, domain.ErrCaseNotFound)
	})

	t.Run("other failure", func(t *testing.T) {
		api := &fakeAPI{transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, errors.New("throttled")
		}}
		repo := NewCaseRepository(api, "cases", "history")
		err := repo.ApplyTransition(context.Background(), updated, current.Version, entry)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrVersionConflict)
	})
}

func TestGetStatusHistoryPages(t *testing.T) {
	page := func(seq int, last bool) *dynamodb.QueryOutput {
		av, err := attributevalue.MarshalMap(historyItem{CaseID: "case-1", Sequence: seq, ToStatus: "submitted", CreatedAt: formatTime(now)})
		require.NoError(t, err)
		out := &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{av}}
		if !last {
			out.LastEvaluatedKey = map[string]types.AttributeValue{"case_id": &types.AttributeValueMemberS{Value: "case-1"}}
		}
		return out
	}

	calls := 0
	api := &fakeAPI{query: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		calls++
		assert.True(t, aws.ToBool(in.ScanIndexForward))
		if in.ExclusiveStartKey == nil {
			return page(1, false), nil
		}
		return page(2, true), nil
	}}
	repo := NewCaseRepository(api, "cases", "history")

	entries, err := repo.GetStatusHistory(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Sequence)
	assert.Equal(t, 2, entries[1].Sequence)
}

func TestGenerateCaseNumber(t *testing.T) {
	api := &fakeAPI{update: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		assert.Equal(t, "counter#SG_20261018_", in.Key["id"].(*types.AttributeValueMemberS).Value)
		assert.Equal(t, "ADD #seq :one", aws.ToString(in.UpdateExpression))
		return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
			"seq": &types.AttributeValueMemberN{Value: "7"},
		}}, nil
	}}
	repo := NewCaseRepository(api, "cases", "history")
	repo.now = func() time.Time { return now }

	number, err := repo.GenerateCaseNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SG_20261018_007", number)
}

func TestFindByNumberScansPages(t *testing.T) {
	calls := 0
	api := &fakeAPI{scan: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
		calls++
		if in.ExclusiveStartKey == nil {
			return &dynamodb.ScanOutput{LastEvaluatedKey: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: "x"},
			}}, nil
		}
		return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{itemOf(t, sampleCase())}}, nil
	}}
	repo := NewCaseRepository(api, "cases", "history")

	c, err := repo.FindByNumber(context.Background(), "SG_20261018_004")
	require.NoError(t, err)
	assert.Equal(t, "case-1", c.ID)
	assert.Equal(t, 2, calls)
}
