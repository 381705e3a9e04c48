package dynamo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// updateExpr is a ready-to-send UpdateExpression with its placeholder maps.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET expression,
// followed by a REMOVE clause for the given fields. Keys are sorted so the
// output is deterministic.
func buildUpdateExpr(updates map[string]interface{}, removes ...string) (updateExpr, error) {
	ue := updateExpr{
		Names:  make(map[string]string),
		Values: make(map[string]types.AttributeValue),
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	if len(keys) > 0 {
		sets := make([]string, 0, len(keys))
		for i, k := range keys {
			nameKey := fmt.Sprintf("#f%d", i)
			valueKey := fmt.Sprintf(":v%d", i)
			av, err := marshalValue(updates[k])
			if err != nil {
				return updateExpr{}, fmt.Errorf("marshal field %s: %w", k, err)
			}
			ue.Names[nameKey] = k
			ue.Values[valueKey] = av
			sets = append(sets, fmt.Sprintf("%s = %s", nameKey, valueKey))
		}
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		rs := make([]string, len(removes))
		for i, k := range removes {
			nameKey := fmt.Sprintf("#r%d", i)
			ue.Names[nameKey] = k
			rs[i] = nameKey
		}
		clauses = append(clauses, "REMOVE "+strings.Join(rs, ", "))
	}
	if len(clauses) == 0 {
		return updateExpr{}, errors.New("no fields to update")
	}
	ue.Expr = strings.Join(clauses, " ")
	return ue, nil
}

// bind adds a condition value placeholder.
func (ue *updateExpr) bind(placeholder string, v interface{}) error {
	av, err := marshalValue(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", placeholder, err)
	}
	ue.Values[placeholder] = av
	return nil
}

// marshalValue passes prebuilt attribute values (e.g. string sets) through untouched.
func marshalValue(v interface{}) (types.AttributeValue, error) {
	if av, ok := v.(types.AttributeValue); ok {
		return av, nil
	}
	return attributevalue.Marshal(v)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func isTransactionCanceled(err error) bool {
	var tce *types.TransactionCanceledException
	return errors.As(err, &tce)
}
