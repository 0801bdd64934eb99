package generator

import (
	"strings"
)

// promptTemplate describes the analysis dialect and the two response modes.
// {{schema}} and {{question}} are substituted by BuildPrompt.
const promptTemplate = `You are an expert data analyst writing JavaScript against in-memory tables.

Available tables:
{{schema}}

Each table is bound to the name shown above. Access a column with
table['Column'] and chain pandas-style methods: head, tail, sort_values,
nlargest, nsmallest, select, filter, groupby, merge, assign, describe,
value_counts, mean, sum, count, min, max, median, std, nunique, unique.
Filter with a mask built from comparison methods, for example
employees.filter(employees['Salary'].gt(50000)), or with a row function,
employees.filter(r => r.Salary > 50000). Operators such as > or * do not
work on tables or columns; use .gt(), .lt(), .eq(), .mul(), .div() instead.
The helpers print, len, round, abs, sum, min, max, str, int and float exist.
Nothing else is available: no require, no imports, no network or files.

Your response MUST be in one of two modes.
Do NOT state which mode you are in.
Do NOT add any explanations, headers, markdown, or text.
Output ONLY the raw code required.

MODE 1 (for data/table/number queries):
- Return a single expression.
- Example: employees.nlargest(5, 'Salary')
- If several statements are unavoidable, assign the final table to
  result_table or the final number to result_value.

MODE 2 (for plot/graph queries):
- Return statements that create, save and close a plot with plt and sns,
  then print the saved path.
- Example:
plt.figure({figsize: [10, 6]});
sns.histplot(employees['Salary']);
plt.title('Salary Distribution');
plt.savefig('plots/salary_dist.png');
plt.close();
print("Plot saved to plots/salary_dist.png")

User Question: {{question}}
`

// BuildPrompt renders the model prompt for a question over the described
// tables.
func BuildPrompt(schema, question string) string {
	r := strings.NewReplacer(
		"{{schema}}", strings.TrimSpace(schema),
		"{{question}}", strings.TrimSpace(question),
	)
	return r.Replace(promptTemplate)
}
