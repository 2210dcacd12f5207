package document

import "fmt"

const classificationPromptTmpl = `請判斷以下文件屬於哪一種類型。

「Form Mode」：表單、申請書、表格欄位為主的文件。
「Info Mode」：說明、規章、公告等以敘述內容為主的文件。

只回答「Form Mode」或「Info Mode」，不要有其他文字。

文件內容：
%s`

const infoSummaryPromptTmpl = `請為文件「%s」撰寫摘要，涵蓋文件的主要內容、適用對象與重點事項，使用繁體中文，不要加入文件以外的資訊。

文件內容：
%s`

const formSummaryPromptTmpl = `以下是表單類文件「%s」，請簡要說明此表單的用途、需要填寫的項目與申請流程，使用繁體中文，控制在 400 字以內。

表單內容：
%s`

const answerPromptTmpl = `你是知識庫問答助理。請只根據以下文件內容回答問題，使用繁體中文。若文件內容不足以回答，請明確說明。

文件內容：
%s

問題：%s

回答：`

func classificationPrompt(text string) string {
	return fmt.Sprintf(classificationPromptTmpl, text)
}

func summaryPrompt(docType DocType, filename, text string) string {
	if docType == DocTypeForm {
		return fmt.Sprintf(formSummaryPromptTmpl, filename, text)
	}
	return fmt.Sprintf(infoSummaryPromptTmpl, filename, text)
}

// AnswerPrompt builds the answer-generation prompt from assembled context
// and the user question.
func AnswerPrompt(context, question string) string {
	return fmt.Sprintf(answerPromptTmpl, context, question)
}
