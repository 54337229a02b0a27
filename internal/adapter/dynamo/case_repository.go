package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

const counterPrefix = "counter#"

// API is the part of the DynamoDB client the repository uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type caseItem struct {
	ID                string           `dynamodbav:"id"`
	Number            string           `dynamodbav:"number"`
	ClientID          string           `dynamodbav:"client_id"`
	DesignerID        *string          `dynamodbav:"designer_id,omitempty"`
	ProcedureCategory string           `dynamodbav:"procedure_category"`
	GuideType         string           `dynamodbav:"guide_type"`
	ServiceTier       string           `dynamodbav:"service_tier"`
	PatientRef        string           `dynamodbav:"patient_ref"`
	Notes             string           `dynamodbav:"notes"`
	SelectedTeeth     []int            `dynamodbav:"selected_teeth"`
	DeliveryMethod    string           `dynamodbav:"delivery_method"`
	DeliveryAddress   *string          `dynamodbav:"delivery_address,omitempty"`
	Attachments       []attachmentItem `dynamodbav:"attachments"`
	Status            string           `dynamodbav:"status"`
	Version           int              `dynamodbav:"version"`
	CreatedAt         string           `dynamodbav:"created_at"`
	UpdatedAt         string           `dynamodbav:"updated_at"`
}

type attachmentItem struct {
	ID          string `dynamodbav:"id"`
	FileName    string `dynamodbav:"file_name"`
	ContentType string `dynamodbav:"content_type"`
	SizeBytes   int64  `dynamodbav:"size_bytes"`
	StorageKey  string `dynamodbav:"storage_key"`
	CreatedAt   string `dynamodbav:"created_at"`
}

type historyItem struct {
	CaseID     string  `dynamodbav:"case_id"`
	Sequence   int     `dynamodbav:"sequence"`
	FromStatus *string `dynamodbav:"from_status,omitempty"`
	ToStatus   string  `dynamodbav:"to_status"`
	ChangedBy  string  `dynamodbav:"changed_by"`
	ActorID    string  `dynamodbav:"actor_id"`
	Kind       string  `dynamodbav:"kind"`
	Notes      *string `dynamodbav:"notes,omitempty"`
	CreatedAt  string  `dynamodbav:"created_at"`
}

// CaseRepository stores cases in DynamoDB.
//
// Table requirements:
//   - cases: PK id (string)
//   - case_status_history: PK case_id (string), SK sequence (number)
//
// Daily case number counters live in the cases table under "counter#<prefix>".
type CaseRepository struct {
	ddb          API
	casesTable   string
	historyTable string
	now          func() time.Time
}

var _ interfaces.CaseRepository = (*CaseRepository)(nil)

func NewCaseRepository(ddb API, casesTable, historyTable string) *CaseRepository {
	return &CaseRepository{
		ddb:          ddb,
		casesTable:   casesTable,
		historyTable: historyTable,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (r *CaseRepository) Create(ctx context.Context, c *domain.Case, entry *domain.StatusHistoryEntry) error {
	caseAV, err := attributevalue.MarshalMap(toCaseItem(c))
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}
	histAV, err := attributevalue.MarshalMap(toHistoryItem(entry))
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	_, err = r.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(r.casesTable),
				Item:                     caseAV,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": "id"},
			}},
			{Put: &types.Put{
				TableName:                aws.String(r.historyTable),
				Item:                     histAV,
				ConditionExpression:      aws.String("attribute_not_exists(#seq)"),
				ExpressionAttributeNames: map[string]string{"#seq": "sequence"},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	entry.ID = int64(entry.Sequence)
	return nil
}

func (r *CaseRepository) FindByID(ctx context.Context, id string) (*domain.Case, error) {
	out, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.casesTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, domain.ErrCaseNotFound
	}

	var it caseItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case: %w", err)
	}
	if it.Number == "" {
		// counter item, not a case
		return nil, domain.ErrCaseNotFound
	}
	return fromCaseItem(it), nil
}

// FindByNumber scans the table; numbers are looked up rarely and the table has
// no secondary index.
func (r *CaseRepository) FindByNumber(ctx context.Context, number string) (*domain.Case, error) {
	input := &dynamodb.ScanInput{
		TableName:                aws.String(r.casesTable),
		FilterExpression:         aws.String("#number = :number"),
		ExpressionAttributeNames: map[string]string{"#number": "number"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":number": &types.AttributeValueMemberS{Value: number},
		},
	}

	for {
		out, err := r.ddb.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cases: %w", err)
		}
		if len(out.Items) > 0 {
			var it caseItem
			if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
				return nil, fmt.Errorf("failed to unmarshal case: %w", err)
			}
			return fromCaseItem(it), nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil, domain.ErrCaseNotFound
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (r *CaseRepository) ApplyTransition(ctx context.Context, c *domain.Case, expectedVersion int, entry *domain.StatusHistoryEntry) error {
	histAV, err := attributevalue.MarshalMap(toHistoryItem(entry))
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	updateExpr := "SET #status = :status, #version = :version, #updated_at = :updated_at"
	values := map[string]types.AttributeValue{
		":status":     &types.AttributeValueMemberS{Value: string(c.Status)},
		":version":    &types.AttributeValueMemberN{Value: strconv.Itoa(c.Version)},
		":expected":   &types.AttributeValueMemberN{Value: strconv.Itoa(expectedVersion)},
		":updated_at": &types.AttributeValueMemberS{Value: formatTime(c.UpdatedAt)},
	}
	names := map[string]string{
		"#id":         "id",
		"#status":     "status",
		"#version":    "version",
		"#updated_at": "updated_at",
	}
	if c.DesignerID != nil {
		updateExpr += ", #designer_id = :designer_id"
		values[":designer_id"] = &types.AttributeValueMemberS{Value: *c.DesignerID}
		names["#designer_id"] = "designer_id"
	}

	_, err = r.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName: aws.String(r.casesTable),
				Key: map[string]types.AttributeValue{
					"id": &types.AttributeValueMemberS{Value: c.ID},
				},
				UpdateExpression:          aws.String(updateExpr),
				ConditionExpression:       aws.String("attribute_exists(#id) AND #version = :expected"),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			}},
			{Put: &types.Put{
				TableName:                aws.String(r.historyTable),
				Item:                     histAV,
				ConditionExpression:      aws.String("attribute_not_exists(#seq)"),
				ExpressionAttributeNames: map[string]string{"#seq": "sequence"},
			}},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			if _, findErr := r.FindByID(ctx, c.ID); errors.Is(findErr, domain.ErrCaseNotFound) {
				return domain.ErrCaseNotFound
			}
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("failed to apply transition: %w", err)
	}
	entry.ID = int64(entry.Sequence)
	return nil
}

func (r *CaseRepository) GetStatusHistory(ctx context.Context, caseID string) ([]*domain.StatusHistoryEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(r.historyTable),
		KeyConditionExpression:   aws.String("#case_id = :case_id"),
		ExpressionAttributeNames: map[string]string{"#case_id": "case_id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":case_id": &types.AttributeValueMemberS{Value: caseID},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	entries := []*domain.StatusHistoryEntry{}
	for {
		out, err := r.ddb.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query status history: %w", err)
		}
		var items []historyItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status history: %w", err)
		}
		for _, it := range items {
			entries = append(entries, fromHistoryItem(it))
		}
		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// GenerateCaseNumber increments an atomic per-day counter.
func (r *CaseRepository) GenerateCaseNumber(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("SG_%s_", r.now().Format("20060102"))

	out, err := r.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.casesTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: counterPrefix + prefix},
		},
		UpdateExpression:         aws.String("ADD #seq :one"),
		ExpressionAttributeNames: map[string]string{"#seq": "seq"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return "", fmt.Errorf("failed to increment case counter: %w", err)
	}

	var counter struct {
		Seq int `dynamodbav:"seq"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return "", fmt.Errorf("failed to read case counter: %w", err)
	}
	return fmt.Sprintf("%s%03d", prefix, counter.Seq), nil
}

func isConditionFailure(err error) bool {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}

func toCaseItem(c *domain.Case) caseItem {
	attachments := make([]attachmentItem, len(c.Attachments))
	for i, a := range c.Attachments {
		attachments[i] = attachmentItem{
			ID:          a.ID,
			FileName:    a.FileName,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			StorageKey:  a.StorageKey,
			CreatedAt:   formatTime(a.CreatedAt),
		}
	}
	return caseItem{
		ID:                c.ID,
		Number:            c.Number,
		ClientID:          c.ClientID,
		DesignerID:        c.DesignerID,
		ProcedureCategory: c.ProcedureCategory,
		GuideType:         c.GuideType,
		ServiceTier:       string(c.ServiceTier),
		PatientRef:        c.PatientRef,
		Notes:             c.Notes,
		SelectedTeeth:     c.SelectedTeeth,
		DeliveryMethod:    string(c.DeliveryMethod),
		DeliveryAddress:   c.DeliveryAddress,
		Attachments:       attachments,
		Status:            string(c.Status),
		Version:           c.Version,
		CreatedAt:         formatTime(c.CreatedAt),
		UpdatedAt:         formatTime(c.UpdatedAt),
	}
}

func fromCaseItem(it caseItem) *domain.Case {
	var attachments []domain.Attachment
	for _, a := range it.Attachments {
		attachments = append(attachments, domain.Attachment{
			ID:          a.ID,
			FileName:    a.FileName,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			StorageKey:  a.StorageKey,
			CreatedAt:   parseTime(a.CreatedAt),
		})
	}
	return &domain.Case{
		ID:                it.ID,
		Number:            it.Number,
		ClientID:          it.ClientID,
		DesignerID:        it.DesignerID,
		ProcedureCategory: it.ProcedureCategory,
		GuideType:         it.GuideType,
		ServiceTier:       domain.ServiceTier(it.ServiceTier),
		PatientRef:        it.PatientRef,
		Notes:             it.Notes,
		SelectedTeeth:     it.SelectedTeeth,
		DeliveryMethod:    domain.DeliveryMethod(it.DeliveryMethod),
		DeliveryAddress:   it.DeliveryAddress,
		Attachments:       attachments,
		Status:            domain.Status(it.Status),
		Version:           it.Version,
		CreatedAt:         parseTime(it.CreatedAt),
		UpdatedAt:         parseTime(it.UpdatedAt),
	}
}

func toHistoryItem(e *domain.StatusHistoryEntry) historyItem {
	var from *string
	if e.FromStatus != nil {
		s := string(*e.FromStatus)
		from = &s
	}
	return historyItem{
		CaseID:     e.CaseID,
		Sequence:   e.Sequence,
		FromStatus: from,
		ToStatus:   string(e.ToStatus),
		ChangedBy:  string(e.ChangedBy),
		ActorID:    e.ActorID,
		Kind:       string(e.Kind),
		Notes:      e.Notes,
		CreatedAt:  formatTime(e.CreatedAt),
	}
}

func fromHistoryItem(it historyItem) *domain.StatusHistoryEntry {
	var from *domain.Status
	if it.FromStatus != nil {
		s := domain.Status(*it.FromStatus)
		from = &s
	}
	return &domain.StatusHistoryEntry{
		ID:         int64(it.Sequence),
		CaseID:     it.CaseID,
		Sequence:   it.Sequence,
		FromStatus: from,
		ToStatus:   domain.Status(it.ToStatus),
		ChangedBy:  domain.Role(it.ChangedBy),
		ActorID:    it.ActorID,
		Kind:       domain.EntryKind(it.Kind),
		Notes:      it.Notes,
		CreatedAt:  parseTime(it.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
