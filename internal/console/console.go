// Package console 菜单驱动的命令行界面
//
// 只负责读取输入、调用 service 层、输出结果；所有错误在这里转换为提示信息，
// 任何错误都不会终止菜单循环。
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"banksystem/internal/model"
	"banksystem/internal/repository"
	"banksystem/internal/service"
	"banksystem/pkg/response"

	"github.com/shopspring/decimal"
)

// maxLineLength 单行输入的上限，超出的行整行丢弃并重新提示
const maxLineLength = 4096

var errLineTooLong = errors.New("输入过长")

type Console struct {
	bank    *service.BankService
	session *service.Session
	in      *bufio.Reader
	out     io.Writer
	// 读取输入时遇到的非 EOF 错误
	err error
}

func New(bank *service.BankService, in io.Reader, out io.Writer) *Console {
	return &Console{
		bank:    bank,
		session: service.NewSession(),
		in:      bufio.NewReader(in),
		out:     out,
	}
}

// Run 运行主菜单，选择退出或输入结束时返回
func (c *Console) Run(ctx context.Context) error {
	for {
		fmt.Fprintln(c.out, "\n===== 银行系统 =====")
		fmt.Fprintln(c.out, "1. 开户")
		fmt.Fprintln(c.out, "2. 登录")
		fmt.Fprintln(c.out, "3. 退出")

		choice, ok := c.prompt("请选择: ")
		if !ok {
			return c.err
		}

		switch choice {
		case "1":
			c.createAccount(ctx)
		case "2":
			if !c.login(ctx) {
				continue
			}
			if !c.accountMenu(ctx) {
				return c.err
			}
		case "3":
			fmt.Fprintln(c.out, "👋 感谢使用，再见。")
			return nil
		default:
			response.ParamError(c.out, "无效的选项，请重试")
		}
	}
}

// accountMenu 登录后的菜单，退出登录返回 true，输入结束返回 false
func (c *Console) accountMenu(ctx context.Context) bool {
	for {
		fmt.Fprintf(c.out, "\n===== 账户菜单 (%d %s) =====\n", c.session.AccountNumber(), c.session.Name())
		fmt.Fprintln(c.out, "1. 存款")
		fmt.Fprintln(c.out, "2. 取款")
		fmt.Fprintln(c.out, "3. 转账")
		fmt.Fprintln(c.out, "4. 查询余额")
		fmt.Fprintln(c.out, "5. 交易记录")
		fmt.Fprintln(c.out, "6. 修改密码")
		fmt.Fprintln(c.out, "7. 退出登录")

		choice, ok := c.prompt("请选择: ")
		if !ok {
			return false
		}

		switch choice {
		case "1":
			c.deposit(ctx)
		case "2":
			c.withdraw(ctx)
		case "3":
			c.transfer(ctx)
		case "4":
			c.balance(ctx)
		case "5":
			c.history(ctx)
		case "6":
			c.changePassword(ctx)
		case "7":
			if err := c.bank.Logout(c.session); err != nil {
				response.Error(c.out, err)
				continue
			}
			fmt.Fprintln(c.out, "👋 已退出登录。")
			return true
		default:
			response.ParamError(c.out, "无效的选项，请重试")
		}
	}
}

func (c *Console) createAccount(ctx context.Context) {
	name, ok := c.prompt("户名: ")
	if !ok {
		return
	}
	password, ok := c.prompt("设置密码: ")
	if !ok {
		return
	}
	typ, ok := c.prompt("账户类型 (Savings/Current): ")
	if !ok {
		return
	}

	acc, err := c.bank.CreateAccount(ctx, c.session, name, password, model.AccountType(typ))
	if err != nil {
		response.Error(c.out, err)
		return
	}
	response.Success(c.out, "开户成功，您的账号是 %d", acc.Number)
}

func (c *Console) login(ctx context.Context) bool {
	number, ok := c.promptAccountNumber("账号: ")
	if !ok {
		return false
	}
	password, ok := c.prompt("密码: ")
	if !ok {
		return false
	}

	acc, err := c.bank.Login(ctx, c.session, number, password)
	if err != nil {
		response.Error(c.out, err)
		return false
	}
	response.Success(c.out, "欢迎 %s！", acc.Name)
	return true
}

func (c *Console) deposit(ctx context.Context) {
	amount, ok := c.promptAmount("存款金额: ")
	if !ok {
		return
	}
	bal, err := c.bank.Deposit(ctx, c.session, amount)
	if err != nil {
		response.Error(c.out, err)
		return
	}
	response.Success(c.out, "存款成功，当前余额 %s", repository.FormatAmount(bal))
}

func (c *Console) withdraw(ctx context.Context) {
	amount, ok := c.promptAmount("取款金额: ")
	if !ok {
		return
	}
	bal, err := c.bank.Withdraw(ctx, c.session, amount)
	if err != nil {
		response.Error(c.out, err)
		return
	}
	response.Success(c.out, "取款成功，当前余额 %s", repository.FormatAmount(bal))
}

func (c *Console) transfer(ctx context.Context) {
	target, ok := c.promptAccountNumber("对方账号: ")
	if !ok {
		return
	}
	amount, ok := c.promptAmount("转账金额: ")
	if !ok {
		return
	}
	bal, err := c.bank.Transfer(ctx, c.session, target, amount)
	if err != nil {
		response.Error(c.out, err)
		return
	}
	response.Success(c.out, "转账成功，当前余额 %s", repository.FormatAmount(bal))
}

func (c *Console) balance(ctx context.Context) {
	bal, err := c.bank.Balance(ctx, c.session)
	if err != nil {
		response.Error(c.out, err)
		return
	}
	fmt.Fprintf(c.out, "💰 当前余额: %s\n", repository.FormatAmount(bal))
}

func (c *Console) history(ctx context.Context) {
	seq, err := c.bank.History(ctx, c.session)
	if err != nil {
		response.Error(c.out, err)
		return
	}

	n := 0
	for t, err := range seq {
		if err != nil {
			response.Error(c.out, err)
			return
		}
		n++
		line := fmt.Sprintf("%s  %-12s %12s", t.Timestamp.Format(repository.TimestampLayout), t.Type, repository.FormatAmount(t.Amount))
		if t.Type.IsTransfer() {
			// 以本账户为对方的流水，显示流水所属账号
			counterparty := t.TargetAccount
			if t.AccountNumber != c.session.AccountNumber() {
				counterparty = t.AccountNumber
			}
			line += fmt.Sprintf("  对方 %d", counterparty)
		}
		fmt.Fprintln(c.out, line)
	}
	if n == 0 {
		fmt.Fprintln(c.out, "暂无交易记录")
	}
}

func (c *Console) changePassword(ctx context.Context) {
	oldPassword, ok := c.prompt("原密码: ")
	if !ok {
		return
	}
	newPassword, ok := c.prompt("新密码: ")
	if !ok {
		return
	}
	if err := c.bank.ChangePassword(ctx, c.session, oldPassword, newPassword); err != nil {
		response.Error(c.out, err)
		return
	}
	response.Success(c.out, "密码修改成功")
}

// prompt 输出提示并读取一行，输入结束或读取失败时 ok 为 false
func (c *Console) prompt(label string) (string, bool) {
	for {
		fmt.Fprint(c.out, label)
		line, err := c.readLine()
		switch {
		case err == nil:
			return strings.TrimSpace(line), true
		case errors.Is(err, errLineTooLong):
			response.ParamError(c.out, fmt.Sprintf("输入过长，最多%d个字符", maxLineLength))
		case errors.Is(err, io.EOF):
			return "", false
		default:
			c.err = err
			return "", false
		}
	}
}

// readLine 读取一行，超长的行读完后返回 errLineTooLong
func (c *Console) readLine() (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := c.in.ReadLine()
		if err != nil {
			return "", err
		}
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > maxLineLength {
				tooLong = true
				buf = nil
			}
		}
		if !isPrefix {
			break
		}
	}
	if tooLong {
		return "", errLineTooLong
	}
	return string(buf), nil
}

func (c *Console) promptAccountNumber(label string) (int64, bool) {
	s, ok := c.prompt(label)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		response.ParamError(c.out, "账号必须是正整数")
		return 0, false
	}
	return n, true
}

func (c *Console) promptAmount(label string) (decimal.Decimal, bool) {
	s, ok := c.prompt(label)
	if !ok {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		response.ParamError(c.out, "金额格式无效")
		return decimal.Zero, false
	}
	return amount, true
}
